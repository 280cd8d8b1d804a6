package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SavePipeline inserts a new pipeline row and returns its id.
func (s *Store) SavePipeline(ctx context.Context, name string, definition PipelineDefinition) (int64, error) {
	defBytes, err := json.Marshal(definition)
	if err != nil {
		return 0, fmt.Errorf("marshalling pipeline definition: %w", err)
	}

	var id int64
	err = s.withLock(func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO pipelines (name, definition, created_at) VALUES (?, ?, ?)`,
			name, string(defBytes), time.Now())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

type pipelineRow struct {
	ID               int64          `db:"id"`
	Name             string         `db:"name"`
	Definition       string         `db:"definition"`
	ValidationConfig sql.NullString `db:"validation_config"`
	CreatedAt        time.Time      `db:"created_at"`
}

func (r pipelineRow) toPipeline() (Pipeline, error) {
	var def PipelineDefinition
	if err := json.Unmarshal([]byte(r.Definition), &def); err != nil {
		return Pipeline{}, fmt.Errorf("decoding pipeline definition: %w", err)
	}
	p := Pipeline{ID: r.ID, Name: r.Name, Definition: def, CreatedAt: r.CreatedAt}
	if r.ValidationConfig.Valid {
		var vc ValidationConfig
		if err := json.Unmarshal([]byte(r.ValidationConfig.String), &vc); err == nil {
			p.ValidationConfig = &vc
		}
	}
	return p, nil
}

// GetPipeline fetches one pipeline by id, or (Pipeline{}, false, nil) if absent.
func (s *Store) GetPipeline(ctx context.Context, id int64) (Pipeline, bool, error) {
	var row pipelineRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM pipelines WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Pipeline{}, false, nil
	}
	if err != nil {
		return Pipeline{}, false, err
	}
	p, err := row.toPipeline()
	return p, true, err
}

// ListPipelines returns every pipeline, newest first.
func (s *Store) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	var rows []pipelineRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM pipelines ORDER BY created_at DESC`); err != nil {
		return nil, err
	}
	out := make([]Pipeline, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPipeline()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// UpdatePipeline replaces a pipeline's name and definition.
func (s *Store) UpdatePipeline(ctx context.Context, id int64, name string, definition PipelineDefinition) (bool, error) {
	defBytes, err := json.Marshal(definition)
	if err != nil {
		return false, fmt.Errorf("marshalling pipeline definition: %w", err)
	}
	var ok bool
	err = s.withLock(func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE pipelines SET name = ?, definition = ? WHERE id = ?`, name, string(defBytes), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		ok = n > 0
		return err
	})
	return ok, err
}

// UpdatePipelineValidationConfig stores the review UI's field-order hints.
func (s *Store) UpdatePipelineValidationConfig(ctx context.Context, id int64, vc ValidationConfig) (bool, error) {
	vcBytes, err := json.Marshal(vc)
	if err != nil {
		return false, fmt.Errorf("marshalling validation config: %w", err)
	}
	var ok bool
	err = s.withLock(func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE pipelines SET validation_config = ? WHERE id = ?`, string(vcBytes), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		ok = n > 0
		return err
	})
	return ok, err
}

// DeletePipeline cascades: records -> jobs -> pipeline, inside one explicit
// transaction with rollback on error, preserving "no dangling records for
// a deleted pipeline".
func (s *Store) DeletePipeline(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE pipeline_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE pipeline_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM pipelines WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		deleted = n > 0
		return err
	})
	return deleted, err
}
