package pipeline

import (
	"context"
	"errors"
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

func newRunnablePipeline(t *testing.T, run func(execCtx *trace.Context) (map[string]any, error)) *Pipeline {
	t.Helper()
	r := block.NewRegistry()
	r.RegisterBuiltin("Gen", newFakeFactoryFn(block.Contract{Name: "Gen", Outputs: []string{"*"}}, run),
		block.Contract{Name: "Gen", Outputs: []string{"*"}})
	p, err := New(r, "p", []block.BlockDef{{Type: "Gen"}})
	require.NoError(t, err)
	return p
}

func TestRun_ExecutesEverySeedRepetition(t *testing.T) {
	q := jobqueue.New()
	require.NoError(t, q.Create(1, 10, 4, storage.JobStatusRunning))
	proc := NewProcessor(nil, q)

	calls := 0
	p := newRunnablePipeline(t, func(execCtx *trace.Context) (map[string]any, error) {
		calls++
		return map[string]any{}, nil
	})

	seeds := []seedfile.Seed{
		{Metadata: map[string]any{"a": 1}, Repetitions: 2},
		{Metadata: map[string]any{"a": 2}, Repetitions: 2},
	}

	err := proc.Run(context.Background(), 1, 10, p, seeds, usage.Unbounded())
	require.NoError(t, err)
	assert.Equal(t, 4, calls)

	job, ok := q.Get(1)
	require.True(t, ok)
	assert.Equal(t, storage.JobStatusCompleted, job.Status)
}

func TestRun_CancellationStopsBeforeNextIteration(t *testing.T) {
	q := jobqueue.New()
	require.NoError(t, q.Create(1, 10, 3, storage.JobStatusRunning))
	proc := NewProcessor(nil, q)

	calls := 0
	p := newRunnablePipeline(t, func(execCtx *trace.Context) (map[string]any, error) {
		calls++
		if calls == 1 {
			q.Cancel(1)
		}
		return map[string]any{}, nil
	})

	seeds := []seedfile.Seed{
		{Metadata: map[string]any{}, Repetitions: 3},
	}

	err := proc.Run(context.Background(), 1, 10, p, seeds, usage.Unbounded())
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "cancellation must stop the loop before the next repetition runs")
}

func TestRun_ConstraintBreachInInnerLoopBreaksOuterLoopToo(t *testing.T) {
	q := jobqueue.New()
	require.NoError(t, q.Create(1, 10, 4, storage.JobStatusRunning))
	proc := NewProcessor(nil, q)

	calls := 0
	p := newRunnablePipeline(t, func(execCtx *trace.Context) (map[string]any, error) {
		calls++
		return map[string]any{
			"_usage": map[string]any{"input_tokens": 100},
		}, nil
	})

	seeds := []seedfile.Seed{
		{Metadata: map[string]any{}, Repetitions: 2},
		{Metadata: map[string]any{}, Repetitions: 2},
	}

	constraints := usage.Unbounded()
	constraints.MaxTotalInputTokens = 50

	err := proc.Run(context.Background(), 1, 10, p, seeds, constraints)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "a constraint breach on the first repetition of the first seed must break both loops")

	job, ok := q.Get(1)
	require.True(t, ok)
	assert.Equal(t, storage.JobStatusStopped, job.Status)
	assert.Contains(t, job.Error, "max_total_input_tokens")
}

func TestRun_ConstraintBreachMidSequenceDoesNotCountOrPersistTheBreachingRecord(t *testing.T) {
	q := jobqueue.New()
	require.NoError(t, q.Create(1, 10, 3, storage.JobStatusRunning))
	proc := NewProcessor(nil, q)

	calls := 0
	p := newRunnablePipeline(t, func(execCtx *trace.Context) (map[string]any, error) {
		calls++
		return map[string]any{
			"_usage": map[string]any{"input_tokens": 8},
		}, nil
	})

	seeds := []seedfile.Seed{
		{Metadata: map[string]any{}, Repetitions: 1},
		{Metadata: map[string]any{}, Repetitions: 1},
		{Metadata: map[string]any{}, Repetitions: 1},
	}

	constraints := usage.Unbounded()
	constraints.MaxTotalTokens = 20 // 3*8=24 > 20 >= 2*8=16: the 3rd seed breaches

	err := proc.Run(context.Background(), 1, 10, p, seeds, constraints)
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "all three seeds run; the breach is only detected after the 3rd executes")

	job, ok := q.Get(1)
	require.True(t, ok)
	assert.Equal(t, storage.JobStatusStopped, job.Status)
	assert.Equal(t, 2, job.RecordsGenerated, "the 3rd seed's breaching result must not be counted")
	assert.Equal(t, 24, job.Usage.TotalTokens(), "job usage must still reflect the consumption that triggered the stop")
}

func TestRun_BlockErrorRecordsFailureAndContinues(t *testing.T) {
	q := jobqueue.New()
	require.NoError(t, q.Create(1, 10, 2, storage.JobStatusRunning))
	proc := NewProcessor(nil, q)

	calls := 0
	p := newRunnablePipeline(t, func(execCtx *trace.Context) (map[string]any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("boom")
		}
		return map[string]any{}, nil
	})

	seeds := []seedfile.Seed{
		{Metadata: map[string]any{}, Repetitions: 2},
	}

	err := proc.Run(context.Background(), 1, 10, p, seeds, usage.Unbounded())
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "a failed repetition must not abort the remaining repetitions")

	job, ok := q.Get(1)
	require.True(t, ok)
	assert.Equal(t, storage.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.RecordsFailed)
	assert.Equal(t, 1, job.RecordsGenerated)
}
