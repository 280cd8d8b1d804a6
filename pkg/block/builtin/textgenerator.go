// Package builtin holds the three reference blocks (TextGenerator,
// Validator, MarkdownMultiplier) that exercise the registry, executor and
// template machinery end-to-end. They are intentionally minimal and
// deterministic — the real generative block bodies are out of scope.
package builtin

import (
	"context"
	"strings"

	"github.com/codeready-toolchain/datagenflow/pkg/block"
	"github.com/codeready-toolchain/datagenflow/pkg/engineerr"
	"github.com/codeready-toolchain/datagenflow/pkg/template"
	"github.com/codeready-toolchain/datagenflow/pkg/trace"
)

// TextGeneratorContract is TextGenerator's declared contract.
var TextGeneratorContract = block.Contract{
	Name:        "TextGenerator",
	Description: "renders a prompt template against accumulated state and writes it to an output field",
	Category:    "generation",
	Inputs:      []string{},
	Outputs:     []string{"generated_text"},
	ConfigSchema: map[string]block.ParamSchema{
		"prompt": {Type: "string", Description: "Jinja-style template rendered against accumulated state"},
	},
}

// TextGenerator renders its configured prompt template against the
// accumulated state and reports a deterministic token usage figure
// derived from output length — a stand-in for a real provider call, which
// is out of scope (spec §1's Non-goals).
type TextGenerator struct {
	prompt string
}

// NewTextGenerator is the block.Factory for "TextGenerator".
func NewTextGenerator(config map[string]any) (block.Block, error) {
	prompt, _ := config["prompt"].(string)
	if prompt == "" {
		return nil, engineerr.NewValidationError("TextGenerator requires a non-empty \"prompt\" config value", nil)
	}
	return &TextGenerator{prompt: prompt}, nil
}

func (b *TextGenerator) Contract() block.Contract {
	return TextGeneratorContract
}

func (b *TextGenerator) Execute(_ context.Context, execCtx *trace.Context) (map[string]any, error) {
	rendered, err := template.Render(b.prompt, execCtx.AccumulatedState)
	if err != nil {
		return nil, err
	}
	words := len(strings.Fields(rendered))
	return map[string]any{
		"generated_text": rendered,
		"_usage": map[string]any{
			"input_tokens":  words,
			"output_tokens": words,
		},
	}, nil
}
