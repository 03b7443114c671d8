package compiler

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindParentCycles(t *testing.T) {
	tests := []struct {
		name    string
		parents map[string]string
		want    [][]string
	}{
		{
			name:    "empty",
			parents: map[string]string{},
		},
		{
			name:    "forest",
			parents: map[string]string{"a": "", "b": "a", "c": "a", "d": ""},
		},
		{
			name:    "self parent",
			parents: map[string]string{"a": "a"},
			want:    [][]string{{"a", "a"}},
		},
		{
			name:    "two node loop",
			parents: map[string]string{"a": "b", "b": "a"},
			want:    [][]string{{"a", "b", "a"}},
		},
		{
			name:    "three node loop with tail",
			parents: map[string]string{"x": "c", "a": "c", "b": "a", "c": "b"},
			want:    [][]string{{"a", "c", "b", "a"}},
		},
		{
			name:    "external parent is not an edge",
			parents: map[string]string{"a": "outside"},
		},
		{
			name:    "two separate loops",
			parents: map[string]string{"a": "b", "b": "a", "m": "n", "n": "m"},
			want:    [][]string{{"a", "b", "a"}, {"m", "n", "m"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycles := FindParentCycles(tt.parents)
			require.Len(t, cycles, len(tt.want))
			for i, c := range cycles {
				assert.Equal(t, tt.want[i], c.Path)
				assert.Contains(t, c.Message, "parent cycle")
			}
		})
	}
}

func TestParentFirst(t *testing.T) {
	parents := map[string]string{
		"leaf":   "mid",
		"mid":    "root",
		"root":   "",
		"other":  "",
		"branch": "root",
	}

	order := parentFirst(parents)
	require.Len(t, order, len(parents))
	for id, parent := range parents {
		if parent == "" {
			continue
		}
		assert.Less(t, slices.Index(order, parent), slices.Index(order, id),
			"%s must come before %s", parent, id)
	}
}

func TestParentFirst_OmitsCycles(t *testing.T) {
	order := parentFirst(map[string]string{"a": "b", "b": "a", "c": ""})
	assert.Equal(t, []string{"c"}, order)
}
