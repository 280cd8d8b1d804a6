// Package storage is the single-file embedded relational store: pipelines,
// jobs, records, llm_models, embedding_models. Schema migrations are
// forward-only ADD COLUMN statements applied at startup; there is no
// destructive migration path.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// EnvFallback carries the environment-derived LLM configuration consulted
// by the startup migration when zero llm_models rows exist (spec §4.4).
type EnvFallback struct {
	Endpoint string
	APIKey   string
	Model    string
}

// Store wraps a single sqlite connection. sqlite does not support
// concurrent writers, so — matching the ClusterCockpit repository's
// dbConnection.go approach of SetMaxOpenConns(1) — every write operation
// is additionally serialised behind one mutex (plain reads do not take
// it), since the single-open-conn
// setting alone only prevents driver-level races, not logical
// read-modify-write races across the richer operations below (default
// model promotion, cascading deletes).
type Store struct {
	db   *sqlx.DB
	mu   sync.Mutex
	path string
}

// Open opens (and initialises) the store at path. Use ":memory:" for a
// live in-memory database — callers must keep the returned *Store alive
// for the database's lifetime since closing it drops an in-memory DB.
func Open(ctx context.Context, path string, envFallback EnvFallback) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_foreign_keys=on", path)
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// A single connection avoids sqlite's "database is locked" errors under
	// concurrent access and gives the in-memory variant persistent state.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.init(ctx, envFallback); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init(ctx context.Context, envFallback EnvFallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range createTableStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	if err := s.migrateSchema(ctx); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	if err := s.migrateEnvToDB(ctx, envFallback); err != nil {
		return fmt.Errorf("migrating env fallback model: %w", err)
	}
	return nil
}

var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS pipelines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		definition TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pipeline_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		total_seeds INTEGER NOT NULL,
		current_seed INTEGER DEFAULT 0,
		records_generated INTEGER DEFAULT 0,
		records_failed INTEGER DEFAULT 0,
		progress REAL DEFAULT 0.0,
		current_block TEXT,
		current_step TEXT,
		error TEXT,
		usage TEXT,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (pipeline_id) REFERENCES pipelines(id)
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		output TEXT NOT NULL,
		metadata TEXT NOT NULL,
		status TEXT NOT NULL,
		pipeline_id INTEGER,
		job_id INTEGER,
		trace TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (pipeline_id) REFERENCES pipelines(id),
		FOREIGN KEY (job_id) REFERENCES jobs(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_status ON records(status)`,
	`CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at)`,
	`CREATE TABLE IF NOT EXISTS llm_models (
		name TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		api_key TEXT,
		model_name TEXT NOT NULL,
		is_default INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS embedding_models (
		name TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		api_key TEXT,
		model_name TEXT NOT NULL,
		dimensions INTEGER,
		is_default INTEGER NOT NULL DEFAULT 0
	)`,
}

// migrateSchema applies any additive ADD COLUMN migration not yet present,
// matching the original's per-column PRAGMA table_info checks. New columns
// introduced after the initial CREATE TABLE statements above are added
// here so existing database files upgrade in place.
func (s *Store) migrateSchema(ctx context.Context) error {
	type column struct{ table, name, ddl string }
	candidates := []column{
		{"pipelines", "validation_config", "ALTER TABLE pipelines ADD COLUMN validation_config TEXT"},
		{"jobs", "usage", "ALTER TABLE jobs ADD COLUMN usage TEXT"},
		{"llm_models", "is_default", "ALTER TABLE llm_models ADD COLUMN is_default INTEGER NOT NULL DEFAULT 0"},
		{"embedding_models", "is_default", "ALTER TABLE embedding_models ADD COLUMN is_default INTEGER NOT NULL DEFAULT 0"},
	}
	for _, c := range candidates {
		has, err := s.hasColumn(ctx, c.table, c.name)
		if err != nil {
			return err
		}
		if !has {
			if _, err := s.db.ExecContext(ctx, c.ddl); err != nil {
				return fmt.Errorf("adding column %s.%s: %w", c.table, c.name, err)
			}
		}
	}
	return nil
}

func (s *Store) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dfltValue  sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// inferProvider implements spec §4.4's substring rules exactly.
func inferProvider(endpoint string) string {
	lower := strings.ToLower(endpoint)
	switch {
	case strings.Contains(lower, "11434"), strings.Contains(lower, "ollama"):
		return "ollama"
	case strings.Contains(lower, "anthropic"):
		return "anthropic"
	case strings.Contains(lower, "generativelanguage"), strings.Contains(lower, "gemini"):
		return "gemini"
	default:
		return "openai"
	}
}

// migrateEnvToDB inserts a `default` LLM model row derived from the
// process environment if zero llm_models rows exist yet (original
// lib/storage.py: _migrate_env_to_db).
func (s *Store) migrateEnvToDB(ctx context.Context, env EnvFallback) error {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM llm_models`); err != nil {
		return err
	}
	if count != 0 || env.Model == "" {
		return nil
	}

	provider := inferProvider(env.Endpoint)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_models (name, provider, endpoint, api_key, model_name, is_default)
		VALUES (?, ?, ?, ?, ?, 1)`,
		"default", provider, env.Endpoint, nullIfEmpty(env.APIKey), env.Model)
	if err != nil {
		return err
	}
	slog.Info("migrated env-derived LLM model into database", "provider", provider, "model", env.Model)
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// withTx runs fn inside an explicit transaction, rolling back on any
// returned error (ClusterCockpit repository's Transaction pattern,
// adapted to sqlite's single-writer discipline via the Store mutex).
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// withLock serialises a non-transactional operation through the same
// mutex used by withTx, so read-modify-write sequences (e.g. default-model
// promotion) never interleave with a concurrent transaction.
func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
