package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/datagenflow/pkg/usage"
)

func TestNewContext_CopiesInitialState(t *testing.T) {
	initial := map[string]any{"a": 1}
	ctx := NewContext("trace-1", 1, 2, initial, usage.Unbounded())

	initial["a"] = 2
	v, ok := ctx.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v, "context state must not alias the caller's map")
}

func TestContext_UpdateMerges(t *testing.T) {
	ctx := NewContext("trace-1", 0, 0, map[string]any{"a": 1}, usage.Unbounded())
	ctx.Update(map[string]any{"b": 2})

	a, _ := ctx.Get("a")
	b, _ := ctx.Get("b")
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestCopyState_IsIndependent(t *testing.T) {
	orig := map[string]any{"x": 1}
	cp := CopyState(orig)
	cp["x"] = 2
	assert.Equal(t, 1, orig["x"])
}
