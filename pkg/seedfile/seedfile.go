// Package seedfile loads the job processor's seed file (JSON or Markdown)
// into a list of Seed values (spec §6).
package seedfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Seed is one input object from the seed file: the starting accumulated
// state plus a repetition count. Repetitions of 0 means "skip this seed,
// do not count as failure" (spec §6, §8).
type Seed struct {
	Repetitions int            `json:"repetitions"`
	Metadata    map[string]any `json:"metadata"`
}

// rawSeed mirrors the on-disk shape before repetitions defaulting/coercion.
type rawSeed struct {
	Repetitions json.RawMessage `json:"repetitions"`
	Metadata    map[string]any  `json:"metadata"`
}

// Load reads a seed file, dispatching on extension: ".md"/".markdown"
// loads the whole file as a single seed; anything else is parsed as JSON
// (a single object, or a list of {repetitions, metadata}).
func Load(path string) ([]Seed, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".md" || ext == ".markdown" {
		return LoadMarkdown(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return ParseJSON(data)
}

// LoadMarkdown loads a Markdown file as a single seed whose metadata is
// {"file_content": <whole file text>} with repetitions=1 (spec §6,
// original_source whole-file-as-one-seed rule).
func LoadMarkdown(path string) ([]Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading markdown seed file: %w", err)
	}
	return []Seed{{Repetitions: 1, Metadata: map[string]any{"file_content": string(data)}}}, nil
}

// ParseJSON parses JSON seed data: either a single object (treated as one
// seed's metadata with repetitions=1) or a list of {repetitions, metadata}.
// Non-integer repetitions are coerced to 1, matching the job processor's
// lenient parsing (validation, not loading, is where negative values are
// rejected — see Validate).
func ParseJSON(data []byte) ([]Seed, error) {
	var asList []rawSeed
	if err := json.Unmarshal(data, &asList); err == nil {
		return coerceAll(asList), nil
	}

	var asObject map[string]any
	if err := json.Unmarshal(data, &asObject); err != nil {
		return nil, fmt.Errorf("seed file is neither a JSON object nor a list: %w", err)
	}
	return []Seed{{Repetitions: 1, Metadata: asObject}}, nil
}

func coerceAll(raw []rawSeed) []Seed {
	out := make([]Seed, 0, len(raw))
	for _, r := range raw {
		reps := 1
		var num json.Number
		if len(r.Repetitions) > 0 && json.Unmarshal(r.Repetitions, &num) == nil &&
			num != "" && isWholeNumberLiteral(string(num)) {
			if n, err := num.Int64(); err == nil {
				reps = int(n)
			}
		}
		out = append(out, Seed{Repetitions: reps, Metadata: r.Metadata})
	}
	return out
}

// isWholeNumberLiteral reports whether a raw JSON number token is an
// integer literal (no fraction or exponent part). A fractional repetitions
// value like 2.5 is not truncated to 2 — it is coerced to 1, same as any
// other non-integer (spec §6).
func isWholeNumberLiteral(s string) bool {
	return !strings.ContainsAny(s, ".eE")
}

// Validate flags negative repetitions, returning a warning for each
// zero-repetition seed (spec §6, §8: repetitions=0 is a warning, not an
// error; repetitions<0 is rejected).
func Validate(seeds []Seed) (warnings []string, err error) {
	for i, s := range seeds {
		if s.Repetitions < 0 {
			return nil, fmt.Errorf("seed %d: repetitions must be >= 0, got %d", i, s.Repetitions)
		}
		if s.Repetitions == 0 {
			warnings = append(warnings, fmt.Sprintf("seed %d: repetitions=0, will be skipped", i))
		}
	}
	return warnings, nil
}

// TotalExecutions sums repetitions across every seed — what the job
// processor counts as total_seeds for progress tracking (spec §4.2).
func TotalExecutions(seeds []Seed) int {
	total := 0
	for _, s := range seeds {
		total += s.Repetitions
	}
	return total
}
