package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/datagenflow/pkg/block"
	"github.com/codeready-toolchain/datagenflow/pkg/engineerr"
	"github.com/codeready-toolchain/datagenflow/pkg/jobqueue"
	"github.com/codeready-toolchain/datagenflow/pkg/storage"
	"github.com/codeready-toolchain/datagenflow/pkg/trace"
	"github.com/codeready-toolchain/datagenflow/pkg/usage"
)

// usageKey is the reserved output key a block uses to report token usage
// for the step it just ran (spec §4.2 step 2d).
const usageKey = "_usage"

// ExecutionResult is the outcome of running a pipeline once to completion
// (or to early termination), either standalone or as one seed/repetition
// of a job.
type ExecutionResult struct {
	Result  map[string]any
	Trace   []trace.Entry
	TraceID string
	Usage   usage.Usage
	Stopped bool   // true if a constraint or cancellation ended execution early
	Reason  string // which constraint tripped, or "cancelled"
}

// Options carries the job-scheduler plumbing Execute needs to check
// cancellation and report progress. All fields are optional; a direct
// (non-job) call leaves JobID zero and JobQueue/Store nil.
type Options struct {
	JobID       int64
	PipelineID  int64
	Constraints usage.Constraints
	JobQueue    *jobqueue.Queue
	Store       *storage.Store
}

// Execute runs the pipeline once against initial seed data. A non-multiplier
// pipeline yields exactly one ExecutionResult; a multiplier pipeline fans
// out into one ExecutionResult per generated seed (spec §4.2).
func (p *Pipeline) Execute(ctx context.Context, initial map[string]any, opts Options) ([]ExecutionResult, error) {
	if len(p.instances) == 0 {
		return []ExecutionResult{{Result: trace.CopyState(initial), TraceID: uuid.NewString(), Usage: usage.New()}}, nil
	}
	if p.IsMultiplier() {
		return p.executeMultiplier(ctx, initial, opts)
	}
	res, err := p.executeNormal(ctx, p.instances, initial, uuid.NewString(), opts)
	if err != nil {
		return nil, err
	}
	return []ExecutionResult{res}, nil
}

// isCancelled reports whether the job backing this execution has been
// cancelled, checked only at the per-block checkpoints the scheduler
// guarantees are visited (spec §4.3: cooperative cancellation).
func isCancelled(opts Options) bool {
	if opts.JobID == 0 || opts.JobQueue == nil {
		return false
	}
	job, ok := opts.JobQueue.Get(opts.JobID)
	return ok && job.Status == storage.JobStatusCancelled
}

func reportProgress(opts Options, blockType string, step int) {
	if opts.JobID == 0 || opts.JobQueue == nil {
		return
	}
	stepStr := fmt.Sprintf("step %d", step)
	opts.JobQueue.Update(opts.JobID, jobqueue.Update{CurrentBlock: &blockType, CurrentStep: &stepStr})
}

// executeNormal runs instances in order against a single execution context,
// returning the final result once every block has run (or execution stops
// early on cancellation or a constraint breach).
func (p *Pipeline) executeNormal(ctx context.Context, instances []block.Block, initial map[string]any, traceID string, opts Options) (ExecutionResult, error) {
	execCtx := trace.NewContext(traceID, opts.JobID, opts.PipelineID, initial, opts.Constraints)

	for step, instance := range instances {
		if isCancelled(opts) {
			return resultFromContext(execCtx, true, "cancelled"), nil
		}

		contract := instance.Contract()
		reportProgress(opts, contract.Name, step)

		blockInput := trace.CopyState(execCtx.AccumulatedState)
		start := time.Now()
		result, err := instance.Execute(ctx, execCtx)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			if _, ok := err.(*engineerr.ValidationError); ok {
				return ExecutionResult{}, err
			}
			return ExecutionResult{}, engineerr.NewBlockExecutionError(contract.Name, step, blockInput, err)
		}

		delta, hadUsage := extractUsage(result)
		if hadUsage {
			execCtx.Usage.Add(delta)
		}

		if err := validateOutput(contract, result); err != nil {
			return ExecutionResult{}, err
		}

		execCtx.Update(result)
		execCtx.Trace = append(execCtx.Trace, trace.Entry{
			BlockType:        contract.Name,
			Input:            blockInput,
			Output:           result,
			AccumulatedState: trace.CopyState(execCtx.AccumulatedState),
			ExecutionTimeSec: elapsed,
		})

		if exceeded, reason := opts.Constraints.IsExceeded(execCtx.Usage); exceeded {
			return resultFromContext(execCtx, true, reason), nil
		}
	}

	execCtx.Usage.Stamp()
	return resultFromContext(execCtx, false, ""), nil
}

func resultFromContext(execCtx *trace.Context, stopped bool, reason string) ExecutionResult {
	return ExecutionResult{
		Result:  execCtx.AccumulatedState,
		Trace:   execCtx.Trace,
		TraceID: execCtx.TraceID,
		Usage:   execCtx.Usage,
		Stopped: stopped,
		Reason:  reason,
	}
}

// executeMultiplier runs the leading multiplier block once to obtain a list
// of seeds, then runs the remaining blocks independently for each seed
// (spec §4.2 ¶2). Each seed gets its own trace_id and accumulated state;
// a seed's output, once complete, is persisted immediately if a store and
// job/pipeline id were supplied.
func (p *Pipeline) executeMultiplier(ctx context.Context, initial map[string]any, opts Options) ([]ExecutionResult, error) {
	multiplier, ok := p.instances[0].(block.MultiplierBlock)
	if !ok {
		return nil, engineerr.NewValidationError("block at position 0 does not implement multiplier execution", nil)
	}
	contract := multiplier.Contract()

	multCtx := trace.NewContext(uuid.NewString(), opts.JobID, opts.PipelineID, initial, opts.Constraints)
	seeds, err := multiplier.ExecuteMultiplier(ctx, multCtx)
	if err != nil {
		return nil, engineerr.NewBlockExecutionError(contract.Name, 0, initial, err)
	}

	remaining := p.instances[1:]
	results := make([]ExecutionResult, 0, len(seeds))

	for i, seed := range seeds {
		if isCancelled(opts) {
			break
		}

		merged := trace.CopyState(initial)
		for k, v := range seed {
			merged[k] = v
		}

		res, err := p.executeNormal(ctx, remaining, merged, uuid.NewString(), opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)

		if opts.Store != nil && opts.PipelineID > 0 {
			persistSeedResult(ctx, opts, merged, res)
		}

		if opts.JobID != 0 && opts.JobQueue != nil {
			seedNum := i + 1
			opts.JobQueue.Update(opts.JobID, jobqueue.Update{CurrentSeed: &seedNum})
		}

		if res.Stopped {
			break
		}
	}

	return results, nil
}

// persistSeedResult saves one seed's completed execution as a record.
// metadata is the seed's original input data (not the post-execution
// accumulated state) — spec.md §3/§4.2 requires Record{metadata=initial_data,
// output=serialized(accumulated_state)} so export can recover both the
// seed that drove a record and the state it produced.
func persistSeedResult(ctx context.Context, opts Options, metadata map[string]any, res ExecutionResult) {
	outputBytes := marshalResult(res.Result)
	var jobID *int64
	if opts.JobID != 0 {
		id := opts.JobID
		jobID = &id
	}
	pipelineID := opts.PipelineID
	status := storage.RecordStatusPending
	_, _ = opts.Store.SaveRecord(ctx, storage.Record{
		Output:   outputBytes,
		Metadata: metadata,
		Status:   status,
		Trace:    res.Trace,
	}, &pipelineID, jobID)
}

// extractUsage pops the reserved `_usage` key out of a block's result,
// coercing it into a Usage delta. A malformed usage blob is discarded, not
// fatal: token accounting is best-effort, never load-bearing for
// correctness (spec §4.2 step 2d).
func extractUsage(result map[string]any) (usage.Usage, bool) {
	raw, ok := result[usageKey]
	if !ok {
		return usage.Usage{}, false
	}
	delete(result, usageKey)

	m, ok := raw.(map[string]any)
	if !ok {
		return usage.Usage{}, false
	}
	return usage.Usage{
		InputTokens:  toInt(m["input_tokens"]),
		OutputTokens: toInt(m["output_tokens"]),
		CachedTokens: toInt(m["cached_tokens"]),
	}, true
}

// marshalResult serialises a seed's final accumulated state as the
// record's `output` column. Marshalling failure degrades to an empty
// object rather than aborting persistence of an otherwise-successful seed.
func marshalResult(result map[string]any) string {
	b, err := json.Marshal(result)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
