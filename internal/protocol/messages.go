package protocol

// Subject names a message on the cross-context channel.
type Subject string

// Scene messages (authoring -> mirrors).
const (
	SubjectCreateNode       Subject = "create_node"
	SubjectChangeNode       Subject = "change_node"
	SubjectDisposeNode      Subject = "dispose_node"
	SubjectCreateMesh       Subject = "create_mesh"
	SubjectChangeMesh       Subject = "change_mesh"
	SubjectDisposeMesh      Subject = "dispose_mesh"
	SubjectCreatePrimitive  Subject = "create_primitive"
	SubjectChangePrimitive  Subject = "change_primitive"
	SubjectDisposePrimitive Subject = "dispose_primitive"
	SubjectCreateMaterial   Subject = "create_material"
	SubjectChangeMaterial   Subject = "change_material"
	SubjectDisposeMaterial  Subject = "dispose_material"
)

// Pointer input (authoring -> render mirror).
const (
	SubjectPointerDown Subject = "pointerdown"
	SubjectPointerMove Subject = "pointermove"
	SubjectPointerUp   Subject = "pointerup"
)

// Render mirror output (render mirror -> authoring).
const (
	SubjectClickedNode Subject = "clicked_node"
	SubjectGesture     Subject = "gesture"
)

// Message is any record carried on the cross-context channel.
type Message interface {
	Subject() Subject
}

// EntityMessage is a message about a single authored entity. Ordering is
// only guaranteed between messages that share the same (kind, id).
type EntityMessage interface {
	Message
	Entity() (Kind, string)
}

// CreateNode announces a new node. World is the node's world transform at
// creation time.
type CreateNode struct {
	ID    string    `json:"id"`
	State NodeState `json:"state"`
	World Transform `json:"world"`
}

// ChangeNode carries a partial update. World is set whenever the node's world
// transform changed; descendants of a moved node receive a ChangeNode with an
// empty patch and the new World.
type ChangeNode struct {
	ID    string     `json:"id"`
	Patch NodePatch  `json:"patch"`
	World *Transform `json:"world,omitempty"`
}

// DisposeNode removes a node.
type DisposeNode struct {
	ID string `json:"id"`
}

// CreateMesh announces a new mesh.
type CreateMesh struct {
	ID    string    `json:"id"`
	State MeshState `json:"state"`
}

// ChangeMesh carries a partial mesh update.
type ChangeMesh struct {
	ID    string    `json:"id"`
	Patch MeshPatch `json:"patch"`
}

// DisposeMesh removes a mesh.
type DisposeMesh struct {
	ID string `json:"id"`
}

// CreatePrimitive announces a new primitive.
type CreatePrimitive struct {
	ID    string         `json:"id"`
	State PrimitiveState `json:"state"`
}

// ChangePrimitive replaces primitive buffers.
type ChangePrimitive struct {
	ID    string         `json:"id"`
	Patch PrimitivePatch `json:"patch"`
}

// DisposePrimitive removes a primitive.
type DisposePrimitive struct {
	ID string `json:"id"`
}

// CreateMaterial announces a new material.
type CreateMaterial struct {
	ID    string        `json:"id"`
	State MaterialState `json:"state"`
}

// ChangeMaterial carries a partial material update.
type ChangeMaterial struct {
	ID    string        `json:"id"`
	Patch MaterialPatch `json:"patch"`
}

// DisposeMaterial removes a material.
type DisposeMaterial struct {
	ID string `json:"id"`
}

func (CreateNode) Subject() Subject       { return SubjectCreateNode }
func (ChangeNode) Subject() Subject       { return SubjectChangeNode }
func (DisposeNode) Subject() Subject      { return SubjectDisposeNode }
func (CreateMesh) Subject() Subject       { return SubjectCreateMesh }
func (ChangeMesh) Subject() Subject       { return SubjectChangeMesh }
func (DisposeMesh) Subject() Subject      { return SubjectDisposeMesh }
func (CreatePrimitive) Subject() Subject  { return SubjectCreatePrimitive }
func (ChangePrimitive) Subject() Subject  { return SubjectChangePrimitive }
func (DisposePrimitive) Subject() Subject { return SubjectDisposePrimitive }
func (CreateMaterial) Subject() Subject   { return SubjectCreateMaterial }
func (ChangeMaterial) Subject() Subject   { return SubjectChangeMaterial }
func (DisposeMaterial) Subject() Subject  { return SubjectDisposeMaterial }

func (m CreateNode) Entity() (Kind, string)       { return KindNode, m.ID }
func (m ChangeNode) Entity() (Kind, string)       { return KindNode, m.ID }
func (m DisposeNode) Entity() (Kind, string)      { return KindNode, m.ID }
func (m CreateMesh) Entity() (Kind, string)       { return KindMesh, m.ID }
func (m ChangeMesh) Entity() (Kind, string)       { return KindMesh, m.ID }
func (m DisposeMesh) Entity() (Kind, string)      { return KindMesh, m.ID }
func (m CreatePrimitive) Entity() (Kind, string)  { return KindPrimitive, m.ID }
func (m ChangePrimitive) Entity() (Kind, string)  { return KindPrimitive, m.ID }
func (m DisposePrimitive) Entity() (Kind, string) { return KindPrimitive, m.ID }
func (m CreateMaterial) Entity() (Kind, string)   { return KindMaterial, m.ID }
func (m ChangeMaterial) Entity() (Kind, string)   { return KindMaterial, m.ID }
func (m DisposeMaterial) Entity() (Kind, string)  { return KindMaterial, m.ID }

// Camera describes the perspective camera used for picking.
// FovY is in radians.
type Camera struct {
	Position Vec3    `json:"position"`
	Target   Vec3    `json:"target"`
	Up       Vec3    `json:"up"`
	FovY     float64 `json:"fov_y"`
	Aspect   float64 `json:"aspect"`
}

// PointerButton identifies a mouse button; 0 is the primary button.
type PointerButton int

const PrimaryButton PointerButton = 0

// PointerDown starts a gesture. AtMillis is a monotonic timestamp.
type PointerDown struct {
	Button   PointerButton `json:"button"`
	Pointer  [2]float64    `json:"pointer"`
	AtMillis int64         `json:"at_ms"`
}

// PointerMove is a single move sample while the pointer is down.
type PointerMove struct {
	Pointer  [2]float64 `json:"pointer"`
	AtMillis int64      `json:"at_ms"`
}

// PointerUp ends a gesture. Pointer is in normalized device coordinates
// (-1..1 on both axes, +y up).
type PointerUp struct {
	Button   PointerButton `json:"button"`
	Pointer  [2]float64    `json:"pointer"`
	AtMillis int64         `json:"at_ms"`
	Camera   Camera        `json:"camera"`
}

func (PointerDown) Subject() Subject { return SubjectPointerDown }
func (PointerMove) Subject() Subject { return SubjectPointerMove }
func (PointerUp) Subject() Subject   { return SubjectPointerUp }

// ClickedNode reports the result of a click pick. NodeID is nil when the
// click hit nothing.
type ClickedNode struct {
	NodeID *string `json:"node_id"`
}

// GestureKind classifies a completed pointer gesture.
type GestureKind string

const (
	GestureClick GestureKind = "click"
	GestureDrag  GestureKind = "drag"
)

// Gesture forwards the classification of a completed pointer gesture.
type Gesture struct {
	Kind       GestureKind `json:"kind"`
	Moves      int         `json:"moves"`
	HeldMillis int64       `json:"held_ms"`
}

func (ClickedNode) Subject() Subject { return SubjectClickedNode }
func (Gesture) Subject() Subject     { return SubjectGesture }
