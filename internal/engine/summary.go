package engine

import (
	"github.com/roach88/scenesync/internal/physics"
	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/render"
)

// Summary is a point-in-time report of both mirrors.
type Summary struct {
	Seq     int64                      `json:"seq" yaml:"seq"`
	Render  render.Counts              `json:"render" yaml:"render"`
	Physics physics.Counts             `json:"physics" yaml:"physics"`
	Errors  map[protocol.ErrorCode]int `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Summary reports the runtime state. Call it after Flush or after Run
// returns.
func (r *Runtime) Summary() Summary {
	return summarize(r.bus.Seq(), r.render, r.physics, r.sink)
}

func summarize(seq int64, rm *render.Mirror, pm *physics.Mirror, sink *Sink) Summary {
	s := Summary{
		Seq:     seq,
		Render:  rm.Counts(),
		Physics: pm.Counts(),
	}
	if counts := sink.Counts(); len(counts) > 0 {
		s.Errors = counts
	}
	return s
}
