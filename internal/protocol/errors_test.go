package protocol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsAndAs(t *testing.T) {
	err := fmt.Errorf("dispose: %w", NotFound(KindNode, "n1"))

	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrTransformInvariant)
	assert.False(t, IsInvalidDescriptor(err))
	assert.Contains(t, err.Error(), "NOT_FOUND")
	assert.Contains(t, err.Error(), "node=n1")
}

func TestError_Helpers(t *testing.T) {
	assert.True(t, IsTransformInvariant(TransformInvariant("a", "cycle")))
	assert.True(t, IsInvalidDescriptor(InvalidDescriptor("a", "empty geometry")))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(fmt.Errorf("plain")))
}
