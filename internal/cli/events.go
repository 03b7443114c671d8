package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/scenesync/internal/engine"
	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/remote"
	"github.com/roach88/scenesync/internal/scene"
)

// maxEventLine bounds one JSONL line; primitive buffers can be large.
const maxEventLine = 16 << 20

// EventLine is one line of an event stream: {"subject": ..., "data": {...}}.
// Scene and pointer subjects use the channel's message shapes; anything else
// is decoded as a host event.
type EventLine struct {
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

// EventStats counts what a stream did.
type EventStats struct {
	Lines  int `json:"lines"`
	Scene  int `json:"scene"`
	Input  int `json:"input"`
	Host   int `json:"host"`
	Failed int `json:"failed"`
}

// eventDriver feeds stream lines into a runtime from the authoring side.
type eventDriver struct {
	rt      *engine.Runtime
	players *remote.Players
	camera  protocol.Camera
	stats   EventStats
}

func newEventDriver(rt *engine.Runtime, players *remote.Players, camera protocol.Camera) *eventDriver {
	return &eventDriver{rt: rt, players: players, camera: camera}
}

// Drive reads r to EOF. Malformed or rejected lines are logged and counted;
// only read errors and cancellation stop the stream.
func (d *eventDriver) Drive(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	lineNo := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		d.stats.Lines++
		if err := d.handle([]byte(line)); err != nil {
			d.stats.Failed++
			slog.Warn("event rejected", "line", lineNo, "error", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading events: %w", err)
	}
	return nil
}

// Stats returns the counts so far.
func (d *eventDriver) Stats() EventStats {
	return d.stats
}

func (d *eventDriver) handle(line []byte) error {
	var ev EventLine
	if err := json.Unmarshal(line, &ev); err != nil {
		return protocol.InvalidMessage("", err)
	}
	subject := protocol.Subject(ev.Subject)

	switch {
	case isPointerSubject(subject):
		m, err := protocol.DecodeData(subject, ev.Data)
		if err != nil {
			return err
		}
		if up, ok := m.(protocol.PointerUp); ok && up.Camera == (protocol.Camera{}) {
			up.Camera = d.camera
			m = up
		}
		d.rt.Send(m)
		d.stats.Input++
		return nil
	case sceneOps[subject].op != "":
		if err := applySceneLine(d.rt.Store(), sceneOps[subject], subject, ev.Data); err != nil {
			return err
		}
		d.stats.Scene++
		return nil
	default:
		hev, err := remote.Decode(line)
		if err != nil {
			return err
		}
		if err := d.players.Apply(hev); err != nil {
			return err
		}
		d.stats.Host++
		return nil
	}
}

func isPointerSubject(s protocol.Subject) bool {
	switch s {
	case protocol.SubjectPointerDown, protocol.SubjectPointerMove, protocol.SubjectPointerUp:
		return true
	}
	return false
}

// sceneOp is the store operation a scene subject maps to.
type sceneOp struct {
	op   string
	kind protocol.Kind
}

var sceneOps = map[protocol.Subject]sceneOp{
	protocol.SubjectCreateNode:       {"create", protocol.KindNode},
	protocol.SubjectChangeNode:       {"change", protocol.KindNode},
	protocol.SubjectDisposeNode:      {"dispose", protocol.KindNode},
	protocol.SubjectCreateMesh:       {"create", protocol.KindMesh},
	protocol.SubjectChangeMesh:       {"change", protocol.KindMesh},
	protocol.SubjectDisposeMesh:      {"dispose", protocol.KindMesh},
	protocol.SubjectCreatePrimitive:  {"create", protocol.KindPrimitive},
	protocol.SubjectChangePrimitive:  {"change", protocol.KindPrimitive},
	protocol.SubjectDisposePrimitive: {"dispose", protocol.KindPrimitive},
	protocol.SubjectCreateMaterial:   {"create", protocol.KindMaterial},
	protocol.SubjectChangeMaterial:   {"change", protocol.KindMaterial},
	protocol.SubjectDisposeMaterial:  {"dispose", protocol.KindMaterial},
}

// sceneData is the data of a scene line: {"id": ..., "state"|"patch": {...}}.
type sceneData struct {
	ID    string          `json:"id"`
	State json.RawMessage `json:"state"`
	Patch json.RawMessage `json:"patch"`
}

// applySceneLine performs the store operation a scene line describes. The
// store then publishes its own messages; the line itself is never forwarded.
// Creates go through scene.Store.Create so omitted fields get their defaults.
func applySceneLine(s *scene.Store, op sceneOp, subject protocol.Subject, data json.RawMessage) error {
	var d sceneData
	if err := json.Unmarshal(data, &d); err != nil {
		return protocol.InvalidMessage(subject, err)
	}
	if d.ID == "" && op.op != "create" {
		return protocol.InvalidMessage(subject, fmt.Errorf("missing id"))
	}

	switch op.op {
	case "create":
		id, err := s.Create(op.kind, d.ID, rawOrNil(d.State))
		if err != nil {
			return err
		}
		slog.Debug("entity created", "kind", op.kind, "id", id)
		return nil
	case "change":
		return s.ApplyPartial(op.kind, d.ID, rawOrNil(d.Patch))
	default:
		return s.Dispose(op.kind, d.ID)
	}
}

// rawOrNil turns an absent field into an untyped nil so the store starts
// from its defaults.
func rawOrNil(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
