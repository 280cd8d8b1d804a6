package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/datagenflow/pkg/block"
	"github.com/codeready-toolchain/datagenflow/pkg/jobqueue"
	"github.com/codeready-toolchain/datagenflow/pkg/seedfile"
	"github.com/codeready-toolchain/datagenflow/pkg/storage"
	"github.com/codeready-toolchain/datagenflow/pkg/trace"
	"github.com/codeready-toolchain/datagenflow/pkg/usage"
)

// Scenarios S1-S5 from spec.md §8, wired through a real in-memory
// storage.Store (rather than Store: nil) so the record-persistence path
// and the job-row terminal state are exercised end-to-end, not just the
// in-memory Processor/Pipeline logic.

func openScenarioStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), ":memory:", storage.EnvFallback{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func textGeneratorFactory(reply string, inputTokens, outputTokens int) block.Factory {
	return newFakeFactoryFn(
		block.Contract{Name: "TextGenerator", Outputs: []string{"assistant"}},
		func(execCtx *trace.Context) (map[string]any, error) {
			return map[string]any{
				"assistant": reply,
				"_usage":    map[string]any{"input_tokens": inputTokens, "output_tokens": outputTokens},
			}, nil
		})
}

func TestScenario_S1_NormalCompletion(t *testing.T) {
	store := openScenarioStore(t)
	ctx := context.Background()

	r := block.NewRegistry()
	r.RegisterBuiltin("TextGenerator", textGeneratorFactory("hello Ann", 5, 3), block.Contract{Name: "TextGenerator", Outputs: []string{"assistant"}})
	p, err := New(r, "greet", []block.BlockDef{{Type: "TextGenerator"}})
	require.NoError(t, err)

	pipelineID, err := store.SavePipeline(ctx, "greet", storage.PipelineDefinition{Blocks: []block.BlockDef{{Type: "TextGenerator"}}})
	require.NoError(t, err)

	seeds := []seedfile.Seed{{Repetitions: 2, Metadata: map[string]any{"user": "Ann"}}}
	totalSeeds := seedfile.TotalExecutions(seeds)

	q := jobqueue.New()
	jobID, err := store.CreateJob(ctx, pipelineID, totalSeeds, storage.JobStatusRunning)
	require.NoError(t, err)
	require.NoError(t, q.Create(jobID, pipelineID, totalSeeds, storage.JobStatusRunning))

	proc := NewProcessor(store, q)
	require.NoError(t, proc.Run(ctx, jobID, pipelineID, p, seeds, usage.Unbounded()))

	job, ok := q.Get(jobID)
	require.True(t, ok)
	assert.Equal(t, storage.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.RecordsGenerated)
	assert.Equal(t, 16, job.Usage.TotalTokens())

	records, err := store.ListRecords(ctx, storage.RecordFilter{JobID: &jobID})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(rec.Output), &out))
		assert.Equal(t, "Ann", out["user"])
		assert.Equal(t, "hello Ann", out["assistant"])
		assert.Equal(t, "Ann", rec.Metadata["user"], "metadata must be the seed's original input, not the final accumulated state")
		_, hasAssistant := rec.Metadata["assistant"]
		assert.False(t, hasAssistant, "metadata must not carry the block's output")
	}
}

func TestScenario_S2_CancellationBetweenSeeds(t *testing.T) {
	store := openScenarioStore(t)
	ctx := context.Background()

	q := jobqueue.New()
	var calls int

	pipelineID, err := store.SavePipeline(ctx, "greet", storage.PipelineDefinition{})
	require.NoError(t, err)

	seeds := []seedfile.Seed{{Repetitions: 10, Metadata: map[string]any{"user": "Ann"}}}
	jobID, err := store.CreateJob(ctx, pipelineID, seedfile.TotalExecutions(seeds), storage.JobStatusRunning)
	require.NoError(t, err)
	require.NoError(t, q.Create(jobID, pipelineID, seedfile.TotalExecutions(seeds), storage.JobStatusRunning))

	proc := NewProcessor(store, q)

	// Cancel from inside the fake block's first invocation. That in-flight
	// execution still completes and its record is persisted; the processor
	// observes the cancellation at the check before the next repetition,
	// so no further block runs and no further record is written.
	r2 := block.NewRegistry()
	r2.RegisterBuiltin("TextGenerator", newFakeFactoryFn(
		block.Contract{Name: "TextGenerator", Outputs: []string{"assistant"}},
		func(execCtx *trace.Context) (map[string]any, error) {
			calls++
			if calls == 1 {
				q.Cancel(jobID)
			}
			return map[string]any{"assistant": "hello Ann"}, nil
		}), block.Contract{Name: "TextGenerator", Outputs: []string{"assistant"}})
	p2, err := New(r2, "greet", []block.BlockDef{{Type: "TextGenerator"}})
	require.NoError(t, err)

	require.NoError(t, proc.Run(ctx, jobID, pipelineID, p2, seeds, usage.Unbounded()))

	job, ok := q.Get(jobID)
	require.True(t, ok)
	assert.Equal(t, storage.JobStatusCancelled, job.Status)
	assert.Equal(t, 1, job.RecordsGenerated)

	records, err := store.ListRecords(ctx, storage.RecordFilter{JobID: &jobID})
	require.NoError(t, err)
	assert.Len(t, records, 1, "no further records appear in storage once cancellation is observed")
}

func TestScenario_S3_ConstraintStop(t *testing.T) {
	store := openScenarioStore(t)
	ctx := context.Background()

	r := block.NewRegistry()
	r.RegisterBuiltin("TextGenerator", textGeneratorFactory("hello Ann", 5, 3), block.Contract{Name: "TextGenerator", Outputs: []string{"assistant"}})
	p, err := New(r, "greet", []block.BlockDef{{Type: "TextGenerator"}})
	require.NoError(t, err)

	pipelineID, err := store.SavePipeline(ctx, "greet", storage.PipelineDefinition{})
	require.NoError(t, err)

	seeds := []seedfile.Seed{{Repetitions: 10, Metadata: map[string]any{"user": "Ann"}}}
	q := jobqueue.New()
	jobID, err := store.CreateJob(ctx, pipelineID, seedfile.TotalExecutions(seeds), storage.JobStatusRunning)
	require.NoError(t, err)
	require.NoError(t, q.Create(jobID, pipelineID, seedfile.TotalExecutions(seeds), storage.JobStatusRunning))

	constraints := usage.Unbounded()
	constraints.MaxTotalTokens = 20 // 8 tokens/seed: 3*8=24 > 20 >= 2*8=16

	proc := NewProcessor(store, q)
	require.NoError(t, proc.Run(ctx, jobID, pipelineID, p, seeds, constraints))

	job, ok := q.Get(jobID)
	require.True(t, ok)
	assert.Equal(t, storage.JobStatusStopped, job.Status)
	assert.Equal(t, 2, job.RecordsGenerated, "the breaching 3rd seed's record must not be counted")
	assert.Contains(t, job.Error, "max_total_tokens")

	records, err := store.ListRecords(ctx, storage.RecordFilter{JobID: &jobID})
	require.NoError(t, err)
	assert.Len(t, records, 2, "the breaching 3rd seed's record must not be persisted")
}

func TestScenario_S4_MultiplierFanOut(t *testing.T) {
	store := openScenarioStore(t)
	ctx := context.Background()

	r := block.NewRegistry()
	r.RegisterBuiltin("Multiplier", newFakeMultiplierFactory(
		block.Contract{Name: "Multiplier", IsMultiplier: true, Outputs: []string{"chunk"}},
		func(execCtx *trace.Context) ([]map[string]any, error) {
			return []map[string]any{{"chunk": "A."}, {"chunk": "B."}, {"chunk": "C."}}, nil
		}), block.Contract{Name: "Multiplier", IsMultiplier: true, Outputs: []string{"chunk"}})
	r.RegisterBuiltin("Validator", newFakeFactoryFn(
		block.Contract{Name: "Validator", Outputs: []string{"*"}},
		func(execCtx *trace.Context) (map[string]any, error) { return map[string]any{}, nil }),
		block.Contract{Name: "Validator", Outputs: []string{"*"}})

	p, err := New(r, "split", []block.BlockDef{{Type: "Multiplier"}, {Type: "Validator"}})
	require.NoError(t, err)

	pipelineID, err := store.SavePipeline(ctx, "split", storage.PipelineDefinition{})
	require.NoError(t, err)

	seeds := []seedfile.Seed{{Repetitions: 1, Metadata: map[string]any{"file_content": "A. B. C."}}}
	q := jobqueue.New()
	jobID, err := store.CreateJob(ctx, pipelineID, seedfile.TotalExecutions(seeds), storage.JobStatusRunning)
	require.NoError(t, err)
	require.NoError(t, q.Create(jobID, pipelineID, seedfile.TotalExecutions(seeds), storage.JobStatusRunning))

	proc := NewProcessor(store, q)
	require.NoError(t, proc.Run(ctx, jobID, pipelineID, p, seeds, usage.Unbounded()))

	records, err := store.ListRecords(ctx, storage.RecordFilter{JobID: &jobID})
	require.NoError(t, err)
	require.Len(t, records, 3)

	outputs := map[string]bool{}
	for _, rec := range records {
		require.Len(t, rec.Trace, 1, "only the Validator step runs per seed; the multiplier itself is not a per-seed trace entry")
		assert.Equal(t, "Validator", rec.Trace[0].BlockType)
		outputs[rec.Output] = true
	}
	assert.Len(t, outputs, 3, "each seed's chunk must produce a distinct record")
}

func TestScenario_S5_BlockOutputViolation(t *testing.T) {
	store := openScenarioStore(t)
	ctx := context.Background()

	r := block.NewRegistry()
	r.RegisterBuiltin("Bad", newFakeFactoryFn(
		block.Contract{Name: "Bad", Outputs: []string{"x"}},
		func(execCtx *trace.Context) (map[string]any, error) {
			return map[string]any{"x": 1, "y": 2}, nil
		}), block.Contract{Name: "Bad", Outputs: []string{"x"}})
	p, err := New(r, "bad", []block.BlockDef{{Type: "Bad"}})
	require.NoError(t, err)

	pipelineID, err := store.SavePipeline(ctx, "bad", storage.PipelineDefinition{})
	require.NoError(t, err)

	seeds := []seedfile.Seed{{Repetitions: 1, Metadata: map[string]any{}}}
	q := jobqueue.New()
	jobID, err := store.CreateJob(ctx, pipelineID, seedfile.TotalExecutions(seeds), storage.JobStatusRunning)
	require.NoError(t, err)
	require.NoError(t, q.Create(jobID, pipelineID, seedfile.TotalExecutions(seeds), storage.JobStatusRunning))

	proc := NewProcessor(store, q)
	require.NoError(t, proc.Run(ctx, jobID, pipelineID, p, seeds, usage.Unbounded()))

	job, ok := q.Get(jobID)
	require.True(t, ok)
	assert.Equal(t, 0, job.RecordsGenerated)
	assert.Equal(t, 1, job.RecordsFailed)

	records, err := store.ListRecords(ctx, storage.RecordFilter{JobID: &jobID})
	require.NoError(t, err)
	assert.Empty(t, records, "a validation failure must not persist a record")
}
