package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func tableFor(kind ModelKind) string {
	if kind == ModelKindEmbedding {
		return "embedding_models"
	}
	return "llm_models"
}

type modelRow struct {
	Name       string         `db:"name"`
	Provider   string         `db:"provider"`
	Endpoint   string         `db:"endpoint"`
	APIKey     sql.NullString `db:"api_key"`
	ModelName  string         `db:"model_name"`
	Dimensions sql.NullInt64  `db:"dimensions"`
	IsDefault  bool           `db:"is_default"`
}

func (r modelRow) toModelConfig() ModelConfig {
	m := ModelConfig{Name: r.Name, Provider: r.Provider, Endpoint: r.Endpoint, APIKey: r.APIKey.String, ModelName: r.ModelName, IsDefault: r.IsDefault}
	if r.Dimensions.Valid {
		v := int(r.Dimensions.Int64)
		m.Dimensions = &v
	}
	return m
}

// ListModels returns every model config of the given kind, in insertion
// order.
func (s *Store) ListModels(ctx context.Context, kind ModelKind) ([]ModelConfig, error) {
	var rows []modelRow
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY rowid ASC", tableFor(kind))
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	out := make([]ModelConfig, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModelConfig())
	}
	return out, nil
}

// GetModel fetches one model config by name.
func (s *Store) GetModel(ctx context.Context, kind ModelKind, name string) (ModelConfig, bool, error) {
	var row modelRow
	query := fmt.Sprintf("SELECT * FROM %s WHERE name = ?", tableFor(kind))
	err := s.db.GetContext(ctx, &row, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelConfig{}, false, nil
	}
	if err != nil {
		return ModelConfig{}, false, err
	}
	return row.toModelConfig(), true, nil
}

// GetDefaultModel returns the model of the given kind with is_default=true.
func (s *Store) GetDefaultModel(ctx context.Context, kind ModelKind) (ModelConfig, bool, error) {
	var row modelRow
	query := fmt.Sprintf("SELECT * FROM %s WHERE is_default = 1 LIMIT 1", tableFor(kind))
	err := s.db.GetContext(ctx, &row, query)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelConfig{}, false, nil
	}
	if err != nil {
		return ModelConfig{}, false, err
	}
	return row.toModelConfig(), true, nil
}

// SaveModel upserts a model config on unique name, enforcing the
// default-model invariants (spec §4.4):
//
//	(a) the first model of a kind becomes default regardless of the
//	    incoming flag;
//	(b) saving a model with is_default=true clears the flag on every
//	    other model of the same kind.
func (s *Store) SaveModel(ctx context.Context, kind ModelKind, cfg ModelConfig) error {
	table := tableFor(kind)
	return s.withLock(func() error {
		var count int
		if err := s.db.GetContext(ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)); err != nil {
			return err
		}
		isDefault := cfg.IsDefault
		if count == 0 {
			isDefault = true
		}

		if isDefault {
			if _, err := s.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET is_default = 0", table)); err != nil {
				return err
			}
		}

		var err error
		if kind == ModelKindEmbedding {
			_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
				INSERT INTO %s (name, provider, endpoint, api_key, model_name, dimensions, is_default)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(name) DO UPDATE SET
					provider = excluded.provider,
					endpoint = excluded.endpoint,
					api_key = excluded.api_key,
					model_name = excluded.model_name,
					dimensions = excluded.dimensions,
					is_default = excluded.is_default`, table),
				cfg.Name, cfg.Provider, cfg.Endpoint, nullIfEmpty(cfg.APIKey), cfg.ModelName, cfg.Dimensions, isDefault)
		} else {
			_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
				INSERT INTO %s (name, provider, endpoint, api_key, model_name, is_default)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(name) DO UPDATE SET
					provider = excluded.provider,
					endpoint = excluded.endpoint,
					api_key = excluded.api_key,
					model_name = excluded.model_name,
					is_default = excluded.is_default`, table),
				cfg.Name, cfg.Provider, cfg.Endpoint, nullIfEmpty(cfg.APIKey), cfg.ModelName, isDefault)
		}
		return err
	})
}

func (s *Store) getModelLocked(ctx context.Context, table, name string) (modelRow, bool, error) {
	var row modelRow
	err := s.db.GetContext(ctx, &row, fmt.Sprintf("SELECT * FROM %s WHERE name = ?", table), name)
	if errors.Is(err, sql.ErrNoRows) {
		return modelRow{}, false, nil
	}
	return row, err == nil, err
}

// DeleteModel deletes a model config. If the deleted model was the
// default and others of the same kind remain, the remaining model that
// sorts first by name is promoted to default (spec §4.4(c)).
func (s *Store) DeleteModel(ctx context.Context, kind ModelKind, name string) (bool, error) {
	table := tableFor(kind)
	var deleted bool
	err := s.withLock(func() error {
		existing, found, err := s.getModelLocked(ctx, table, name)
		if err != nil || !found {
			return err
		}

		res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE name = ?", table), name)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0

		if deleted && existing.IsDefault {
			var remainingName sql.NullString
			err := s.db.GetContext(ctx, &remainingName, fmt.Sprintf("SELECT name FROM %s ORDER BY name ASC LIMIT 1", table))
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}
			if remainingName.Valid {
				_, err = s.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET is_default = 1 WHERE name = ?", table), remainingName.String)
				return err
			}
		}
		return nil
	})
	return deleted, err
}

// SetDefaultModel explicitly promotes a model to default, clearing every
// other model of the same kind.
func (s *Store) SetDefaultModel(ctx context.Context, kind ModelKind, name string) error {
	table := tableFor(kind)
	return s.withLock(func() error {
		_, found, err := s.getModelLocked(ctx, table, name)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("model %q not found", name)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET is_default = 0", table)); err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET is_default = 1 WHERE name = ?", table), name)
		return err
	})
}
