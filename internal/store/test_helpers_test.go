package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/scenesync/internal/protocol"
)

// createTestStore opens a journal in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// appendAll journals msgs at seq 1, 2, ...
func appendAll(t *testing.T, s *Store, msgs ...protocol.Message) {
	t.Helper()
	for i, m := range msgs {
		if err := s.Append(context.Background(), int64(i+1), m); err != nil {
			t.Fatalf("Append(%d) failed: %v", i+1, err)
		}
	}
}

func testNode(id, parent string) protocol.CreateNode {
	st := protocol.NodeState{Name: id, Parent: parent}
	st.ApplyDefaults()
	return protocol.CreateNode{ID: id, State: st, World: protocol.IdentityTransform()}
}
