// Package trace holds the per-execution trace entries and the
// BlockExecutionContext that every block receives.
package trace

import (
	"maps"

	"github.com/codeready-toolchain/datagenflow/pkg/usage"
)

// Entry is one block invocation's input/output/post-state snapshot.
// Entries are append-only within a single execution.
type Entry struct {
	BlockType        string         `json:"block_type"`
	Input            map[string]any `json:"input"`
	Output           map[string]any `json:"output"`
	AccumulatedState map[string]any `json:"accumulated_state,omitempty"`
	ExecutionTimeSec float64        `json:"execution_time_seconds"`
	Error            string         `json:"error,omitempty"`
}

// Context is the object passed into every block invocation. It exposes the
// accumulated state, cumulative usage-so-far, the trace captured so far,
// and the pipeline's constraints.
type Context struct {
	TraceID          string
	JobID            int64 // 0 = direct (non-job) call
	PipelineID       int64
	AccumulatedState map[string]any
	Usage            usage.Usage
	Trace            []Entry
	Constraints      usage.Constraints
}

// NewContext seeds a fresh execution context from initial seed data. The
// supplied map is copied so callers retain ownership of their original.
func NewContext(traceID string, jobID, pipelineID int64, initial map[string]any, constraints usage.Constraints) *Context {
	return &Context{
		TraceID:          traceID,
		JobID:            jobID,
		PipelineID:       pipelineID,
		AccumulatedState: CopyState(initial),
		Usage:            usage.New(),
		Trace:            make([]Entry, 0),
		Constraints:      constraints,
	}
}

// Get reads a key out of the accumulated state.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.AccumulatedState[key]
	return v, ok
}

// Update merges updates into the accumulated state in place.
func (c *Context) Update(updates map[string]any) {
	maps.Copy(c.AccumulatedState, updates)
}

// CopyState returns a shallow copy of a state map, matching the Python
// `dict.copy()` semantics used at every block-input snapshot point.
func CopyState(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	maps.Copy(out, m)
	return out
}
