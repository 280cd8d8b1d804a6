package builtin

import (
	"context"
	"strings"

	"github.com/codeready-toolchain/datagenflow/pkg/block"
	"github.com/codeready-toolchain/datagenflow/pkg/engineerr"
	"github.com/codeready-toolchain/datagenflow/pkg/trace"
)

// MarkdownMultiplierContract is MarkdownMultiplier's declared contract.
var MarkdownMultiplierContract = block.Contract{
	Name:         "MarkdownMultiplier",
	Description:  "splits file_content into sentence-bounded chunks, one seed per chunk",
	Category:     "multiplier",
	Inputs:       []string{"file_content"},
	Outputs:      []string{"chunk"},
	IsMultiplier: true,
	ConfigSchema: map[string]block.ParamSchema{
		"chunk_size": {Type: "integer", Default: 500, Description: "character budget per chunk; sentences are never split, so a single sentence longer than the budget forms its own chunk"},
	},
}

// MarkdownMultiplier is the pipeline-position-0 fan-out block: it splits
// the seed's file_content into sentences and greedily packs them into
// chunks no larger than chunk_size characters (rounding up rather than
// splitting mid-sentence), emitting one downstream seed per chunk.
type MarkdownMultiplier struct {
	chunkSize int
}

// NewMarkdownMultiplier is the block.Factory for "MarkdownMultiplier".
func NewMarkdownMultiplier(config map[string]any) (block.Block, error) {
	chunkSize := 500
	if v, ok := config["chunk_size"]; ok {
		switch n := v.(type) {
		case int:
			chunkSize = n
		case float64:
			chunkSize = int(n)
		}
	}
	if chunkSize <= 0 {
		return nil, engineerr.NewValidationError("MarkdownMultiplier: chunk_size must be positive", nil)
	}
	return &MarkdownMultiplier{chunkSize: chunkSize}, nil
}

func (b *MarkdownMultiplier) Contract() block.Contract {
	return MarkdownMultiplierContract
}

// Execute is never called directly in a multiplier position; the executor
// calls ExecuteMultiplier instead. Implemented for interface completeness
// and to let a multiplier block be unit-tested like any other.
func (b *MarkdownMultiplier) Execute(ctx context.Context, execCtx *trace.Context) (map[string]any, error) {
	seeds, err := b.ExecuteMultiplier(ctx, execCtx)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return map[string]any{}, nil
	}
	return seeds[0], nil
}

func (b *MarkdownMultiplier) ExecuteMultiplier(_ context.Context, execCtx *trace.Context) ([]map[string]any, error) {
	content, _ := execCtx.Get("file_content")
	text, ok := content.(string)
	if !ok || text == "" {
		return nil, engineerr.NewValidationError("MarkdownMultiplier: file_content missing or not a string", nil)
	}

	sentences := splitSentences(text)
	var seeds []map[string]any
	var current strings.Builder
	for _, s := range sentences {
		if current.Len() > 0 && current.Len()+len(s) > b.chunkSize {
			seeds = append(seeds, map[string]any{"chunk": strings.TrimSpace(current.String())})
			current.Reset()
		}
		current.WriteString(s)
		current.WriteByte(' ')
	}
	if current.Len() > 0 {
		seeds = append(seeds, map[string]any{"chunk": strings.TrimSpace(current.String())})
	}
	return seeds, nil
}

// splitSentences does a minimal sentence split on ". ", "! " and "? ",
// keeping the terminator attached to its sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && (i+1 == len(text) || text[i+1] == ' ') {
			out = append(out, strings.TrimSpace(text[start:i+1]))
			start = i + 1
		}
	}
	if start < len(text) {
		if rest := strings.TrimSpace(text[start:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}
