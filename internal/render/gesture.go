package render

import (
	"time"

	"github.com/roach88/scenesync/internal/protocol"
)

// Click thresholds: fewer than DefaultMaxMoves move samples and a press
// shorter than DefaultMaxDuration.
const (
	DefaultMaxMoves    = 6
	DefaultMaxDuration = time.Second
)

// ClickPolicy decides which pointer gestures count as clicks.
type ClickPolicy struct {
	MaxMoves    int           `yaml:"max_moves" json:"max_moves"`
	MaxDuration time.Duration `yaml:"max_duration" json:"max_duration"`
}

// DefaultClickPolicy returns the standard click thresholds.
func DefaultClickPolicy() ClickPolicy {
	return ClickPolicy{MaxMoves: DefaultMaxMoves, MaxDuration: DefaultMaxDuration}
}

// Gesture tracks one pointer press from down to up.
type Gesture struct {
	policy  ClickPolicy
	active  bool
	button  protocol.PointerButton
	startMs int64
	moves   int
}

// NewGesture returns a tracker using policy.
func NewGesture(policy ClickPolicy) *Gesture {
	return &Gesture{policy: policy}
}

// Down starts a gesture, discarding any unfinished one.
func (g *Gesture) Down(e protocol.PointerDown) {
	g.active = true
	g.button = e.Button
	g.startMs = e.AtMillis
	g.moves = 0
}

// Move counts one move sample. Moves without a press are ignored.
func (g *Gesture) Move(protocol.PointerMove) {
	if g.active {
		g.moves++
	}
}

// Up ends the gesture and classifies it. An up without a matching down is
// a drag.
func (g *Gesture) Up(e protocol.PointerUp) protocol.Gesture {
	held := e.AtMillis - g.startMs
	out := protocol.Gesture{Kind: protocol.GestureDrag, Moves: g.moves, HeldMillis: held}
	if g.active && g.isClick(e.Button, held) {
		out.Kind = protocol.GestureClick
	}
	g.active = false
	g.moves = 0
	return out
}

func (g *Gesture) isClick(button protocol.PointerButton, heldMs int64) bool {
	return button == protocol.PrimaryButton &&
		g.moves < g.policy.MaxMoves &&
		heldMs < g.policy.MaxDuration.Milliseconds()
}
