package physics

import (
	"fmt"

	"github.com/roach88/scenesync/internal/collider"
	"github.com/roach88/scenesync/internal/protocol"
)

// Collision groups. Every collider created by the mirror is static.
const (
	GroupStatic  uint32 = 1 << 0
	GroupDynamic uint32 = 1 << 1
)

// BodyHandle identifies a rigid body. Handles are never reused.
type BodyHandle uint64

// ColliderHandle identifies a collider. Handles are never reused.
type ColliderHandle uint64

// RigidBody is a fixed body positioned in world space.
type RigidBody struct {
	Handle      BodyHandle
	Translation protocol.Vec3
	Rotation    protocol.Quat
	Collider    ColliderHandle // 0 when none is attached
}

// Collider is an immutable shape attached to one body. Changing the shape
// means creating a new collider.
type Collider struct {
	Handle ColliderHandle
	Body   BodyHandle
	Shape  collider.Shape
	Group  uint32
}

// World owns static bodies and their colliders. It performs no simulation
// stepping; it is the bookkeeping a simulator would read from.
type World struct {
	bodies    map[BodyHandle]*RigidBody
	colliders map[ColliderHandle]*Collider
	next      uint64
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		bodies:    make(map[BodyHandle]*RigidBody),
		colliders: make(map[ColliderHandle]*Collider),
	}
}

func (w *World) handle() uint64 {
	w.next++
	return w.next
}

// CreateFixedBody adds a static body at the given pose.
func (w *World) CreateFixedBody(translation protocol.Vec3, rotation protocol.Quat) BodyHandle {
	h := BodyHandle(w.handle())
	w.bodies[h] = &RigidBody{Handle: h, Translation: translation, Rotation: rotation}
	return h
}

// CreateCollider attaches a new collider with shape to body. A body holds at
// most one collider; use SwapCollider to replace it.
func (w *World) CreateCollider(body BodyHandle, shape collider.Shape) (ColliderHandle, error) {
	b, ok := w.bodies[body]
	if !ok {
		return 0, fmt.Errorf("create collider: body %d not found", body)
	}
	if b.Collider != 0 {
		return 0, fmt.Errorf("create collider: body %d already has collider %d", body, b.Collider)
	}
	h := ColliderHandle(w.handle())
	w.colliders[h] = &Collider{Handle: h, Body: body, Shape: shape, Group: GroupStatic}
	b.Collider = h
	return h, nil
}

// SwapCollider creates a collider with shape on body, then removes the one
// it replaces. The body keeps its handle and pose.
func (w *World) SwapCollider(body BodyHandle, shape collider.Shape) (ColliderHandle, error) {
	b, ok := w.bodies[body]
	if !ok {
		return 0, fmt.Errorf("swap collider: body %d not found", body)
	}
	old := b.Collider
	h := ColliderHandle(w.handle())
	w.colliders[h] = &Collider{Handle: h, Body: body, Shape: shape, Group: GroupStatic}
	b.Collider = h
	delete(w.colliders, old)
	return h, nil
}

// SetPose moves a body.
func (w *World) SetPose(body BodyHandle, translation protocol.Vec3, rotation protocol.Quat) error {
	b, ok := w.bodies[body]
	if !ok {
		return fmt.Errorf("set pose: body %d not found", body)
	}
	b.Translation = translation
	b.Rotation = rotation
	return nil
}

// RemoveBody removes a body and its collider. Removing a missing body is a
// no-op.
func (w *World) RemoveBody(body BodyHandle) {
	b, ok := w.bodies[body]
	if !ok {
		return
	}
	delete(w.colliders, b.Collider)
	delete(w.bodies, body)
}

// Body returns a copy of a body.
func (w *World) Body(h BodyHandle) (RigidBody, bool) {
	b, ok := w.bodies[h]
	if !ok {
		return RigidBody{}, false
	}
	return *b, true
}

// Collider returns a copy of a collider.
func (w *World) Collider(h ColliderHandle) (Collider, bool) {
	c, ok := w.colliders[h]
	if !ok {
		return Collider{}, false
	}
	return *c, true
}

// NumBodies returns the number of live bodies.
func (w *World) NumBodies() int { return len(w.bodies) }

// NumColliders returns the number of live colliders.
func (w *World) NumColliders() int { return len(w.colliders) }

// Check verifies that every collider's body exists and points back at it.
func (w *World) Check() error {
	for h, c := range w.colliders {
		b, ok := w.bodies[c.Body]
		if !ok {
			return fmt.Errorf("collider %d attached to missing body %d", h, c.Body)
		}
		if b.Collider != h {
			return fmt.Errorf("collider %d not referenced by body %d", h, c.Body)
		}
	}
	for h, b := range w.bodies {
		if b.Collider == 0 {
			return fmt.Errorf("body %d has no collider", h)
		}
	}
	return nil
}
