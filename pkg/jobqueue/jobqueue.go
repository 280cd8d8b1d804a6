// Package jobqueue is the in-memory job scheduler: a map of jobs, a
// single active-job slot, and per-pipeline bounded history. All operations
// take one lock (spec §4.3).
package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codeready-toolchain/datagenflow/pkg/storage"
	"github.com/codeready-toolchain/datagenflow/pkg/usage"
)

// historyLimit is the per-pipeline ring-buffer size (spec §4.3 and the
// original's job_history deque(maxlen=10)).
const historyLimit = 10

// Job is the in-memory mirror of a storage.Job, read with GetJob/Active
// and defensively copied on every read so callers can't mutate internal
// state.
type Job struct {
	ID               int64
	PipelineID       int64
	Status           storage.JobStatus
	TotalSeeds       int
	CurrentSeed      int
	RecordsGenerated int
	RecordsFailed    int
	Progress         float64
	CurrentBlock     string
	CurrentStep      string
	Error            string
	StartedAt        time.Time
	CompletedAt      *time.Time
	Usage            usage.Usage
}

func (j Job) clone() Job {
	c := j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// Queue is the job scheduler described in spec §4.3.
type Queue struct {
	mu       sync.Mutex
	jobs     map[int64]*Job
	activeID *int64
	history  map[int64][]int64 // pipeline_id -> job ids, newest last, capped at historyLimit
}

func New() *Queue {
	return &Queue{
		jobs:    make(map[int64]*Job),
		history: make(map[int64][]int64),
	}
}

// ErrAlreadyRunning is returned by Create when a non-terminal job already
// occupies the active slot — admission control (spec §4.3, invariant #1
// in §3: at most one non-terminal job at a time).
var ErrAlreadyRunning = fmt.Errorf("a job is already running; cancel it first")

// Create registers a new job in memory. Fails with ErrAlreadyRunning if a
// job already occupies the active slot.
func (q *Queue) Create(jobID, pipelineID int64, totalSeeds int, status storage.JobStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.activeID != nil {
		return ErrAlreadyRunning
	}
	if status == "" {
		status = storage.JobStatusRunning
	}

	job := &Job{
		ID:         jobID,
		PipelineID: pipelineID,
		Status:     status,
		TotalSeeds: totalSeeds,
		StartedAt:  time.Now(),
	}
	q.jobs[jobID] = job
	q.activeID = &jobID
	q.addToHistory(pipelineID, jobID)
	return nil
}

func (q *Queue) addToHistory(pipelineID, jobID int64) {
	h := append(q.history[pipelineID], jobID)
	if len(h) > historyLimit {
		h = h[len(h)-historyLimit:]
	}
	q.history[pipelineID] = h
}

// Get returns a defensive copy of a job, or false if unknown.
func (q *Queue) Get(jobID int64) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return j.clone(), true
}

// Update applies field updates described by the Update struct. If the new
// status is terminal, the active slot is cleared (if it pointed at this
// job) and CompletedAt is stamped when not already provided.
type Update struct {
	Status           *storage.JobStatus
	TotalSeeds       *int
	CurrentSeed      *int
	RecordsGenerated *int
	RecordsFailed    *int
	Progress         *float64
	CurrentBlock     *string
	CurrentStep      *string
	Error            *string
	Usage            *usage.Usage
	CompletedAt      *time.Time
}

// Update applies field updates to a job. Returns false if the job doesn't exist.
func (q *Queue) Update(jobID int64, u Update) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.updateLocked(jobID, u)
}

func (q *Queue) updateLocked(jobID int64, u Update) bool {
	job, ok := q.jobs[jobID]
	if !ok {
		return false
	}
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.TotalSeeds != nil {
		job.TotalSeeds = *u.TotalSeeds
	}
	if u.CurrentSeed != nil {
		job.CurrentSeed = *u.CurrentSeed
	}
	if u.RecordsGenerated != nil {
		job.RecordsGenerated = *u.RecordsGenerated
	}
	if u.RecordsFailed != nil {
		job.RecordsFailed = *u.RecordsFailed
	}
	if u.Progress != nil {
		job.Progress = *u.Progress
	}
	if u.CurrentBlock != nil {
		job.CurrentBlock = *u.CurrentBlock
	}
	if u.CurrentStep != nil {
		job.CurrentStep = *u.CurrentStep
	}
	if u.Error != nil {
		job.Error = *u.Error
	}
	if u.Usage != nil {
		job.Usage = *u.Usage
	}

	if u.Status != nil && u.Status.IsTerminal() {
		if q.activeID != nil && *q.activeID == jobID {
			q.activeID = nil
		}
		if u.CompletedAt != nil {
			job.CompletedAt = u.CompletedAt
		} else if job.CompletedAt == nil {
			now := time.Now()
			job.CompletedAt = &now
		}
	} else if u.CompletedAt != nil {
		job.CompletedAt = u.CompletedAt
	}
	return true
}

// Cancel marks a job cancelled, stamps CompletedAt, and clears the active
// slot if it matched.
func (q *Queue) Cancel(jobID int64) bool {
	status := storage.JobStatusCancelled
	return q.Update(jobID, Update{Status: &status})
}

// Delete removes a job from memory entirely (and from pipeline history).
func (q *Queue) Delete(jobID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return false
	}
	delete(q.jobs, jobID)

	hist := q.history[job.PipelineID]
	filtered := hist[:0]
	for _, id := range hist {
		if id != jobID {
			filtered = append(filtered, id)
		}
	}
	q.history[job.PipelineID] = filtered

	if q.activeID != nil && *q.activeID == jobID {
		q.activeID = nil
	}
	return true
}

// Active returns the currently running job, if any.
func (q *Queue) Active() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.activeID == nil {
		return Job{}, false
	}
	j, ok := q.jobs[*q.activeID]
	if !ok {
		return Job{}, false
	}
	return j.clone(), true
}

// PipelineHistory returns the last (up to 10) jobs for a pipeline, most
// recent first.
func (q *Queue) PipelineHistory(pipelineID int64) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := q.history[pipelineID]
	out := make([]Job, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if j, ok := q.jobs[ids[i]]; ok {
			out = append(out, j.clone())
		}
	}
	return out
}

// UpdateAndPersist updates the in-memory mirror first (authoritative for
// the UI), then best-effort updates the storage row. Returns false without
// touching storage if the job isn't in the mirror (original lib/job_queue.py
// semantics).
func (q *Queue) UpdateAndPersist(ctx context.Context, jobID int64, store *storage.Store, u Update) (bool, error) {
	q.mu.Lock()
	ok := q.updateLocked(jobID, u)
	if ok && u.Status != nil && u.Status.IsTerminal() && u.CompletedAt == nil {
		// Persist the completion time the mirror just stamped.
		stamped := *q.jobs[jobID].CompletedAt
		u.CompletedAt = &stamped
	}
	q.mu.Unlock()
	if !ok {
		return false, nil
	}
	if store == nil {
		return true, nil
	}

	su := storage.JobUpdate{
		Status:           u.Status,
		TotalSeeds:       u.TotalSeeds,
		CurrentSeed:      u.CurrentSeed,
		RecordsGenerated: u.RecordsGenerated,
		RecordsFailed:    u.RecordsFailed,
		Progress:         u.Progress,
		CurrentBlock:     u.CurrentBlock,
		CurrentStep:      u.CurrentStep,
		Error:            u.Error,
		Usage:            u.Usage,
		CompletedAt:      u.CompletedAt,
	}
	_, err := store.UpdateJob(ctx, jobID, su)
	return true, err
}
