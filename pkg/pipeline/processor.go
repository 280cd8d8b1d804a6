package pipeline

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/datagenflow/pkg/jobqueue"
	"github.com/codeready-toolchain/datagenflow/pkg/seedfile"
	"github.com/codeready-toolchain/datagenflow/pkg/storage"
	"github.com/codeready-toolchain/datagenflow/pkg/usage"
)

// Processor drives one job to completion: it walks the seed file,
// executes the pipeline once per repetition, and keeps the in-memory job
// mirror and the durable job row in sync (spec §4.2, §4.3).
type Processor struct {
	Store    *storage.Store
	JobQueue *jobqueue.Queue
}

func NewProcessor(store *storage.Store, queue *jobqueue.Queue) *Processor {
	return &Processor{Store: store, JobQueue: queue}
}

// Run executes jobID against p, iterating seeds in order. For a
// non-multiplier pipeline each seed's repetitions drive independent
// executions of the whole pipeline; for a multiplier pipeline the
// multiplier block itself does the fan-out per seed and Execute persists
// each generated record directly (spec §4.2 ¶2).
//
// The outer loop re-checks cancellation and constraints after every inner
// iteration and, on either condition, breaks the outer loop too — a
// seed-repetition break must not silently resume at the next seed (spec
// §4.2, the "re-check after inner loop" requirement).
func (p *Processor) Run(ctx context.Context, jobID, pipelineID int64, pl *Pipeline, seeds []seedfile.Seed, constraints usage.Constraints) error {
	totalSeeds := seedfile.TotalExecutions(seeds)
	cumulative := usage.New()
	recordsGenerated := 0
	recordsFailed := 0
	executed := 0
	terminated := false
	terminationReason := ""

	opts := Options{
		JobID:       jobID,
		PipelineID:  pipelineID,
		Constraints: constraints,
		JobQueue:    p.JobQueue,
		Store:       p.Store,
	}

outer:
	for _, seed := range seeds {
		for rep := 0; rep < seed.Repetitions; rep++ {
			if jobCancelled(p.JobQueue, jobID) {
				terminated = true
				terminationReason = "cancelled"
				break outer
			}

			results, err := pl.Execute(ctx, seed.Metadata, opts)
			if err != nil {
				recordsFailed++
			} else {
				for _, res := range results {
					// Fold usage into the job total before deciding whether
					// to keep the result: job.usage must reflect the
					// consumption that triggered a stop even though the
					// breaching result itself is discarded, not persisted
					// or counted (spec §8 S3: the breaching execution does
					// not bump records_generated).
					cumulative.Add(res.Usage)

					if exceeded, reason := constraints.IsExceeded(cumulative); exceeded {
						terminated = true
						terminationReason = reason
						break
					}

					if !pl.IsMultiplier() {
						p.persistSuccess(ctx, pipelineID, jobID, seed.Metadata, res)
					}
					recordsGenerated++
					if res.Stopped {
						terminated = true
						terminationReason = res.Reason
					}
				}
			}

			executed++
			progress := 0.0
			if totalSeeds > 0 {
				progress = float64(executed) / float64(totalSeeds)
			}
			p.updateProgress(ctx, jobID, executed, recordsGenerated, recordsFailed, progress, cumulative)

			if terminated {
				break outer
			}
		}
	}

	cumulative.Stamp()
	return p.finish(ctx, jobID, terminated, terminationReason, cumulative)
}

func jobCancelled(q *jobqueue.Queue, jobID int64) bool {
	if q == nil {
		return false
	}
	job, ok := q.Get(jobID)
	return ok && job.Status == storage.JobStatusCancelled
}

func (p *Processor) updateProgress(ctx context.Context, jobID int64, currentSeed, generated, failed int, progress float64, u usage.Usage) {
	if p.JobQueue == nil {
		return
	}
	_, _ = p.JobQueue.UpdateAndPersist(ctx, jobID, p.Store, jobqueue.Update{
		CurrentSeed:      &currentSeed,
		RecordsGenerated: &generated,
		RecordsFailed:    &failed,
		Progress:         &progress,
		Usage:            &u,
	})
}

func (p *Processor) persistSuccess(ctx context.Context, pipelineID, jobID int64, metadata map[string]any, res ExecutionResult) {
	if p.Store == nil {
		return
	}
	persistSeedResult(ctx, Options{PipelineID: pipelineID, JobID: jobID, Store: p.Store}, metadata, res)
}

func (p *Processor) persistFailure(ctx context.Context, pipelineID, jobID int64, metadata map[string]any, err error) {
	if p.Store == nil {
		return
	}
	pid := pipelineID
	jid := jobID
	_, _ = p.Store.SaveRecord(ctx, storage.Record{
		Output:   "{}",
		Metadata: metadata,
		Status:   storage.RecordStatusRejected,
	}, &pid, &jid)
	_ = err
}

// finish stamps the job's terminal status: cancelled if the job was
// actively cancelled, stopped if a constraint ended it early, completed
// otherwise.
func (p *Processor) finish(ctx context.Context, jobID int64, terminated bool, reason string, u usage.Usage) error {
	status := storage.JobStatusCompleted
	var errMsg string
	switch {
	case reason == "cancelled":
		status = storage.JobStatusCancelled
	case terminated:
		status = storage.JobStatusStopped
		errMsg = fmt.Sprintf("stopped: constraint %q exceeded", reason)
	}

	if p.JobQueue == nil {
		return nil
	}
	update := jobqueue.Update{Status: &status, Usage: &u}
	if errMsg != "" {
		update.Error = &errMsg
	}
	_, err := p.JobQueue.UpdateAndPersist(ctx, jobID, p.Store, update)
	return err
}
