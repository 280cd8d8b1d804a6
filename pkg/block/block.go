// Package block defines the block contract, the registry that discovers
// and tracks block implementations, and JSON-schema generation/validation
// for block config.
package block

import (
	"context"

	"github.com/codeready-toolchain/datagenflow/pkg/trace"
)

// ParamSchema describes one constructor/config parameter of a block,
// derived from its config struct via reflection (see schema.go).
type ParamSchema struct {
	Type             string `json:"type"`
	Default          any    `json:"default,omitempty"`
	Enum             []any  `json:"enum,omitempty"`
	IsFieldReference bool   `json:"is_field_reference,omitempty"`
	Description      string `json:"description,omitempty"`
}

// Contract is the class-level metadata every block declares.
type Contract struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Category     string                 `json:"category"`
	Inputs       []string               `json:"inputs"`
	Outputs      []string               `json:"outputs"`
	IsMultiplier bool                   `json:"is_multiplier"`
	Dependencies []string               `json:"dependencies"`
	ConfigSchema map[string]ParamSchema `json:"config_schema,omitempty"`
}

// AllowsAnyOutput reports whether the contract's outputs contain the "*"
// wildcard, which disables the output-subset check entirely (spec §9 open
// question 4 — kept as specified, not narrowed, since no manifest-based
// replacement was in scope for this engine).
func (c Contract) AllowsAnyOutput() bool {
	for _, o := range c.Outputs {
		if o == "*" {
			return true
		}
	}
	return false
}

// Block is the interface every non-multiplier block implements: given an
// execution context, return the mapping to merge into accumulated state.
type Block interface {
	Contract() Contract
	Execute(ctx context.Context, execCtx *trace.Context) (map[string]any, error)
}

// MultiplierBlock is implemented by the single block allowed at pipeline
// position 0: instead of one mapping it returns a list of seed maps, each
// of which becomes an independent downstream execution.
type MultiplierBlock interface {
	Block
	ExecuteMultiplier(ctx context.Context, execCtx *trace.Context) ([]map[string]any, error)
}

// Factory constructs a configured block instance from a config mapping,
// the Go analogue of Python's `block_class(**block_config)`.
type Factory func(config map[string]any) (Block, error)
