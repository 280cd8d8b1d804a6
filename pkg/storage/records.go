package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/codeready-toolchain/datagenflow/pkg/trace"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// SaveRecord inserts a new record row and returns its id.
func (s *Store) SaveRecord(ctx context.Context, rec Record, pipelineID, jobID *int64) (int64, error) {
	metaBytes, err := json.Marshal(rec.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshalling metadata: %w", err)
	}
	var traceBytes []byte
	if rec.Trace != nil {
		traceBytes, err = json.Marshal(rec.Trace)
		if err != nil {
			return 0, fmt.Errorf("marshalling trace: %w", err)
		}
	}
	status := rec.Status
	if status == "" {
		status = RecordStatusPending
	}
	now := time.Now()

	var id int64
	err = s.withLock(func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO records (output, metadata, status, pipeline_id, job_id, trace, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Output, string(metaBytes), string(status), pipelineID, jobID, nullBytes(traceBytes), now, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

type recordRow struct {
	ID         int64          `db:"id"`
	Output     string         `db:"output"`
	Metadata   string         `db:"metadata"`
	Status     string         `db:"status"`
	PipelineID sql.NullInt64  `db:"pipeline_id"`
	JobID      sql.NullInt64  `db:"job_id"`
	Trace      sql.NullString `db:"trace"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r recordRow) toRecord() (Record, error) {
	var meta map[string]any
	if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
		return Record{}, fmt.Errorf("decoding metadata: %w", err)
	}
	rec := Record{
		ID:        r.ID,
		Output:    r.Output,
		Metadata:  meta,
		Status:    RecordStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.PipelineID.Valid {
		v := r.PipelineID.Int64
		rec.PipelineID = &v
	}
	if r.JobID.Valid {
		v := r.JobID.Int64
		rec.JobID = &v
	}
	if r.Trace.Valid && r.Trace.String != "" {
		var tr []trace.Entry
		if err := json.Unmarshal([]byte(r.Trace.String), &tr); err != nil {
			return Record{}, fmt.Errorf("decoding trace: %w", err)
		}
		rec.Trace = tr
	}
	return rec, nil
}

// RecordFilter narrows ListRecords.
type RecordFilter struct {
	Status     *RecordStatus
	JobID      *int64
	PipelineID *int64
	Limit      int
	Offset     int
}

// ListRecords returns records matching filter, newest first, built with
// squirrel so optional filters compose without manual string surgery.
func (s *Store) ListRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	qb := psql.Select("*").From("records").OrderBy("created_at DESC").Limit(uint64(limit)).Offset(uint64(f.Offset))
	if f.Status != nil {
		qb = qb.Where(sq.Eq{"status": string(*f.Status)})
	}
	if f.JobID != nil {
		qb = qb.Where(sq.Eq{"job_id": *f.JobID})
	}
	if f.PipelineID != nil {
		qb = qb.Where(sq.Eq{"pipeline_id": *f.PipelineID})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building records query: %w", err)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetRecord fetches one record by id.
func (s *Store) GetRecord(ctx context.Context, id int64) (Record, bool, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM records WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	rec, err := row.toRecord()
	return rec, true, err
}

// RecordEdit is the mutable field group the review UI may change.
type RecordEdit struct {
	Output   *string
	Status   *RecordStatus
	Metadata map[string]any
}

// UpdateRecord applies the mutable field group (output/status/metadata).
func (s *Store) UpdateRecord(ctx context.Context, id int64, edit RecordEdit) (bool, error) {
	sets := []string{}
	args := []any{}
	if edit.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, *edit.Output)
	}
	if edit.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*edit.Status))
	}
	if edit.Metadata != nil {
		b, err := json.Marshal(edit.Metadata)
		if err != nil {
			return false, fmt.Errorf("marshalling metadata: %w", err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, string(b))
	}
	if len(sets) == 0 {
		return false, nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now())

	query := "UPDATE records SET " + joinSets(sets) + " WHERE id = ?"
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

func joinSets(sets []string) string {
	out := ""
	for i, s := range sets {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// UpdateRecordAccumulatedState patches the last trace entry's
// accumulated_state with the supplied values and writes the whole trace
// back in one UPDATE — the review UI's "correct a field post-hoc" escape
// hatch (spec §3).
func (s *Store) UpdateRecordAccumulatedState(ctx context.Context, id int64, patch map[string]any) (bool, error) {
	rec, found, err := s.GetRecord(ctx, id)
	if err != nil || !found || len(rec.Trace) == 0 {
		return false, err
	}

	last := &rec.Trace[len(rec.Trace)-1]
	if last.AccumulatedState == nil {
		last.AccumulatedState = make(map[string]any)
	}
	for k, v := range patch {
		last.AccumulatedState[k] = v
	}

	traceBytes, err := json.Marshal(rec.Trace)
	if err != nil {
		return false, fmt.Errorf("marshalling trace: %w", err)
	}

	var ok bool
	err = s.withLock(func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE records SET trace = ?, updated_at = ? WHERE id = ?`,
			string(traceBytes), time.Now(), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		ok = n > 0
		return err
	})
	return ok, err
}

// DeleteAllRecords deletes records for a job (and the job row itself,
// transactionally) or, with jobID nil, every record in the store.
func (s *Store) DeleteAllRecords(ctx context.Context, jobID *int64) (int64, error) {
	if jobID == nil {
		var count int64
		err := s.withLock(func() error {
			res, err := s.db.ExecContext(ctx, `DELETE FROM records`)
			if err != nil {
				return err
			}
			count, err = res.RowsAffected()
			return err
		})
		return count, err
	}

	var count int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE job_id = ?`, *jobID)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, *jobID)
		return err
	})
	return count, err
}
