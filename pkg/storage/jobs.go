package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/codeready-toolchain/datagenflow/pkg/usage"
)

// CreateJob inserts a new job row and returns its id.
func (s *Store) CreateJob(ctx context.Context, pipelineID int64, totalSeeds int, status JobStatus) (int64, error) {
	now := time.Now()
	var id int64
	err := s.withLock(func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO jobs (pipeline_id, status, total_seeds, started_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			pipelineID, status, totalSeeds, now, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

type jobRow struct {
	ID               int64          `db:"id"`
	PipelineID       int64          `db:"pipeline_id"`
	Status           string         `db:"status"`
	TotalSeeds       int            `db:"total_seeds"`
	CurrentSeed      int            `db:"current_seed"`
	RecordsGenerated int            `db:"records_generated"`
	RecordsFailed    int            `db:"records_failed"`
	Progress         float64        `db:"progress"`
	CurrentBlock     sql.NullString `db:"current_block"`
	CurrentStep      sql.NullString `db:"current_step"`
	Error            sql.NullString `db:"error"`
	Usage            sql.NullString `db:"usage"`
	StartedAt        time.Time      `db:"started_at"`
	CompletedAt      sql.NullTime   `db:"completed_at"`
	CreatedAt        sql.NullTime   `db:"created_at"`
}

func (r jobRow) toJob() Job {
	j := Job{
		ID:               r.ID,
		PipelineID:       r.PipelineID,
		Status:           JobStatus(r.Status),
		TotalSeeds:       r.TotalSeeds,
		CurrentSeed:      r.CurrentSeed,
		RecordsGenerated: r.RecordsGenerated,
		RecordsFailed:    r.RecordsFailed,
		Progress:         r.Progress,
		CurrentBlock:     r.CurrentBlock.String,
		CurrentStep:      r.CurrentStep.String,
		Error:            r.Error.String,
		StartedAt:        r.StartedAt,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		j.CompletedAt = &t
	}
	if r.CreatedAt.Valid {
		j.CreatedAt = r.CreatedAt.Time
	}
	if r.Usage.Valid {
		var u usage.Usage
		if err := json.Unmarshal([]byte(r.Usage.String), &u); err == nil {
			j.Usage = u
		}
	}
	return j
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (Job, bool, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	return row.toJob(), true, nil
}

// ListJobs returns up to limit jobs, optionally filtered by pipeline,
// newest-started first.
func (s *Store) ListJobs(ctx context.Context, pipelineID *int64, limit int) ([]Job, error) {
	var rows []jobRow
	var err error
	if pipelineID != nil {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT * FROM jobs WHERE pipeline_id = ? ORDER BY started_at DESC LIMIT ?`, *pipelineID, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM jobs ORDER BY started_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	out := make([]Job, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toJob())
	}
	return out, nil
}

// JobUpdate carries the subset of job fields UpdateJob is allowed to
// write; nil fields are left untouched.
type JobUpdate struct {
	Status           *JobStatus
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

// UpdateJob applies a partial update. Returns true (no error) without
// touching the database if no fields were present to update, matching the
// original's "no fields => not an error" no-op behavior.
func (s *Store) UpdateJob(ctx context.Context, id int64, u JobUpdate) (bool, error) {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 8)

	add := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.TotalSeeds != nil {
		add("total_seeds", *u.TotalSeeds)
	}
	if u.CurrentSeed != nil {
		add("current_seed", *u.CurrentSeed)
	}
	if u.RecordsGenerated != nil {
		add("records_generated", *u.RecordsGenerated)
	}
	if u.RecordsFailed != nil {
		add("records_failed", *u.RecordsFailed)
	}
	if u.Progress != nil {
		add("progress", *u.Progress)
	}
	if u.CurrentBlock != nil {
		add("current_block", *u.CurrentBlock)
	}
	if u.CurrentStep != nil {
		add("current_step", *u.CurrentStep)
	}
	if u.Error != nil {
		add("error", *u.Error)
	}
	if u.Usage != nil {
		b, err := json.Marshal(*u.Usage)
		if err != nil {
			return false, fmt.Errorf("marshalling usage: %w", err)
		}
		add("usage", string(b))
	}
	if u.CompletedAt != nil {
		add("completed_at", *u.CompletedAt)
	}

	if len(sets) == 0 {
		return true, nil
	}

	query := "UPDATE jobs SET "
	for i, s := range sets {
		if i > 0 {
			query += ", "
		}
		query += s
	}
	query += " WHERE id = ?"
	args = append(args, id)

	var ok bool
	err := s.withLock(func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		ok = n > 0
		return err
	})
	return ok, err
}

// PurgeOldJobs deletes jobs (and their records, cascaded) whose
// completed_at is set and older than cutoff; the status column is not
// consulted. Jobs without completed_at, such as running jobs, are never
// touched. Used by pkg/cleanup's retention loop.
func (s *Store) PurgeOldJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids,
		`SELECT id FROM jobs WHERE completed_at IS NOT NULL AND completed_at < ?`, cutoff); err != nil {
		return 0, err
	}

	var total int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE job_id = ?`, id); err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	return total, err
}
