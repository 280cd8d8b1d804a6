package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/datagenflow/pkg/block"
)

func newTestRegistry() *block.Registry {
	r := block.NewRegistry()
	r.RegisterBuiltin("Multiplier", newFakeFactory(block.Contract{Name: "Multiplier", IsMultiplier: true, Outputs: []string{"chunk"}}), block.Contract{Name: "Multiplier", IsMultiplier: true, Outputs: []string{"chunk"}})
	r.RegisterBuiltin("Generator", newFakeFactory(block.Contract{Name: "Generator", Outputs: []string{"generated_text"}}), block.Contract{Name: "Generator", Outputs: []string{"generated_text"}})
	return r
}

func TestNew_RejectsMultipleMultiplierBlocks(t *testing.T) {
	r := newTestRegistry()
	_, err := New(r, "p", []block.BlockDef{{Type: "Multiplier"}, {Type: "Multiplier"}})
	require.Error(t, err)
}

func TestNew_RejectsMultiplierNotAtPositionZero(t *testing.T) {
	r := newTestRegistry()
	_, err := New(r, "p", []block.BlockDef{{Type: "Generator"}, {Type: "Multiplier"}})
	require.Error(t, err)
}

func TestNew_UnknownBlockTypeFails(t *testing.T) {
	r := newTestRegistry()
	_, err := New(r, "p", []block.BlockDef{{Type: "NoSuchBlock"}})
	require.Error(t, err)
}

func TestIsMultiplier_TrueOnlyWhenLeadingBlockMultiplies(t *testing.T) {
	r := newTestRegistry()
	p, err := New(r, "p", []block.BlockDef{{Type: "Multiplier"}, {Type: "Generator"}})
	require.NoError(t, err)
	assert.True(t, p.IsMultiplier())

	p2, err := New(r, "p", []block.BlockDef{{Type: "Generator"}})
	require.NoError(t, err)
	assert.False(t, p2.IsMultiplier())
}

func TestValidateOutput_WildcardAllowsAnything(t *testing.T) {
	contract := block.Contract{Name: "X", Outputs: []string{"*"}}
	err := validateOutput(contract, map[string]any{"anything": 1})
	assert.NoError(t, err)
}

func TestValidateOutput_RejectsUndeclaredField(t *testing.T) {
	contract := block.Contract{Name: "X", Outputs: []string{"a"}}
	err := validateOutput(contract, map[string]any{"a": 1, "b": 2})
	assert.Error(t, err)
}
