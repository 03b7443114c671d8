package scene

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/scenesync/internal/protocol"
)

// Create adds an entity of kind. state is either the kind's typed state
// (protocol.NodeState, ...) or its JSON encoding.
func (s *Store) Create(kind protocol.Kind, id string, state any) (string, error) {
	switch kind {
	case protocol.KindNode:
		v, err := decodeAs[protocol.NodeState](protocol.SubjectCreateNode, state)
		if err != nil {
			return "", err
		}
		return s.CreateNode(id, v)
	case protocol.KindMesh:
		v, err := decodeAs[protocol.MeshState](protocol.SubjectCreateMesh, state)
		if err != nil {
			return "", err
		}
		return s.CreateMesh(id, v)
	case protocol.KindPrimitive:
		v, err := decodeAs[protocol.PrimitiveState](protocol.SubjectCreatePrimitive, state)
		if err != nil {
			return "", err
		}
		return s.CreatePrimitive(id, v)
	case protocol.KindMaterial:
		// Start from defaults so omitted factors match glTF.
		base := protocol.NewMaterialState()
		v, err := decodeOnto(protocol.SubjectCreateMaterial, state, base)
		if err != nil {
			return "", err
		}
		return s.CreateMaterial(id, v)
	}
	return "", unknownKind(kind)
}

// ApplyPartial merges a patch into an entity of kind. patch is either the
// kind's typed patch or its JSON encoding; JSON null clears optional fields.
func (s *Store) ApplyPartial(kind protocol.Kind, id string, patch any) error {
	switch kind {
	case protocol.KindNode:
		v, err := decodeAs[protocol.NodePatch](protocol.SubjectChangeNode, patch)
		if err != nil {
			return err
		}
		return s.ApplyNode(id, v)
	case protocol.KindMesh:
		v, err := decodeAs[protocol.MeshPatch](protocol.SubjectChangeMesh, patch)
		if err != nil {
			return err
		}
		return s.ApplyMesh(id, v)
	case protocol.KindPrimitive:
		v, err := decodeAs[protocol.PrimitivePatch](protocol.SubjectChangePrimitive, patch)
		if err != nil {
			return err
		}
		return s.ApplyPrimitive(id, v)
	case protocol.KindMaterial:
		v, err := decodeAs[protocol.MaterialPatch](protocol.SubjectChangeMaterial, patch)
		if err != nil {
			return err
		}
		return s.ApplyMaterial(id, v)
	}
	return unknownKind(kind)
}

// Dispose removes an entity of kind.
func (s *Store) Dispose(kind protocol.Kind, id string) error {
	switch kind {
	case protocol.KindNode:
		return s.DisposeNode(id)
	case protocol.KindMesh:
		return s.DisposeMesh(id)
	case protocol.KindPrimitive:
		return s.DisposePrimitive(id)
	case protocol.KindMaterial:
		return s.DisposeMaterial(id)
	}
	return unknownKind(kind)
}

func unknownKind(kind protocol.Kind) error {
	return protocol.InvalidMessage("", fmt.Errorf("unknown entity kind %q", kind))
}

func decodeAs[T any](subject protocol.Subject, v any) (T, error) {
	var zero T
	return decodeOnto(subject, v, zero)
}

// decodeOnto returns v when it already has type T, otherwise decodes its
// JSON form over base.
func decodeOnto[T any](subject protocol.Subject, v any, base T) (T, error) {
	switch val := v.(type) {
	case T:
		return val, nil
	case *T:
		if val == nil {
			return base, nil
		}
		return *val, nil
	case json.RawMessage:
		return unmarshalOnto(subject, val, base)
	case []byte:
		return unmarshalOnto(subject, val, base)
	case nil:
		return base, nil
	default:
		// Maps from YAML or CUE round-trip through JSON.
		b, err := json.Marshal(val)
		if err != nil {
			return base, protocol.InvalidMessage(subject, err)
		}
		return unmarshalOnto(subject, b, base)
	}
}

func unmarshalOnto[T any](subject protocol.Subject, b []byte, base T) (T, error) {
	out := base
	if err := json.Unmarshal(b, &out); err != nil {
		return base, protocol.InvalidMessage(subject, err)
	}
	return out, nil
}
