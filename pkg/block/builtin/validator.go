package builtin

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/datagenflow/pkg/block"
	"github.com/codeready-toolchain/datagenflow/pkg/engineerr"
	"github.com/codeready-toolchain/datagenflow/pkg/trace"
)

// ValidatorContract is Validator's declared contract. Its outputs are the
// wildcard; on success Validator returns an empty mapping, so it never
// changes accumulated state.
var ValidatorContract = block.Contract{
	Name:        "Validator",
	Description: "rejects records whose configured field is shorter than min_length",
	Category:    "validation",
	Inputs:      []string{},
	Outputs:     []string{"*"},
	ConfigSchema: map[string]block.ParamSchema{
		"field":      {Type: "string", Default: "file_content", Description: "accumulated-state field to check"},
		"min_length": {Type: "integer", Default: 1, Description: "minimum string length required"},
	},
}

// Validator checks that a configured field is present and at least
// min_length long, failing the block execution (not silently dropping the
// record) when it is not — the job processor counts that as a failed
// record (spec §4.2).
type Validator struct {
	field     string
	minLength int
}

// NewValidator is the block.Factory for "Validator".
func NewValidator(config map[string]any) (block.Block, error) {
	field, _ := config["field"].(string)
	if field == "" {
		field = "file_content"
	}
	minLength := 1
	if v, ok := config["min_length"]; ok {
		switch n := v.(type) {
		case int:
			minLength = n
		case float64:
			minLength = int(n)
		}
	}
	return &Validator{field: field, minLength: minLength}, nil
}

func (b *Validator) Contract() block.Contract {
	return ValidatorContract
}

func (b *Validator) Execute(_ context.Context, execCtx *trace.Context) (map[string]any, error) {
	value, ok := execCtx.Get(b.field)
	if !ok {
		return nil, engineerr.NewValidationError(fmt.Sprintf("Validator: field %q not present in accumulated state", b.field), nil)
	}
	str, ok := value.(string)
	if !ok || len(str) < b.minLength {
		return nil, engineerr.NewValidationError(
			fmt.Sprintf("Validator: field %q is shorter than min_length %d", b.field, b.minLength),
			map[string]any{"field": b.field, "min_length": b.minLength},
		)
	}
	return map[string]any{}, nil
}
