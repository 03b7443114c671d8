// Package testutil holds deterministic helpers shared by tests and the
// scenario harness.
package testutil

import "sync"

// PointerClock is a manually advanced millisecond clock for stamping pointer
// input. Scenarios that replay gestures get identical timestamps on every
// run.
//
// All methods are safe for concurrent use.
type PointerClock struct {
	mu    sync.Mutex
	start int64
	ms    int64
}

// NewPointerClock returns a clock reading start.
func NewPointerClock(start int64) *PointerClock {
	return &PointerClock{start: start, ms: start}
}

// Now returns the current time in milliseconds.
func (c *PointerClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Advance moves the clock forward by d milliseconds and returns the new
// time. Negative d is ignored so the clock stays monotonic.
func (c *PointerClock) Advance(d int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.ms += d
	}
	return c.ms
}

// Reset returns the clock to its start time.
func (c *PointerClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = c.start
}
