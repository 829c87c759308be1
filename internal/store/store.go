package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/xkazm04/personas-sub002/internal/observability"
)

// Store is the sqlite-backed repository for personas, executions, traces,
// triggers and rotation checks. It satisfies pipeline.Repository and
// scheduler.Source.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Config holds store configuration
type Config struct {
	Path   string
	Logger zerolog.Logger
}

// New opens the database, enables WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps the scheduler's reads from blocking pipeline writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger.With().Str("component", "store").Logger(),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.Path).Msg("Store initialized")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS personas (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL DEFAULT '',
			max_concurrent INTEGER NOT NULL DEFAULT 0,
			timeout_ms INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			persona_id TEXT NOT NULL,
			trigger_id TEXT NOT NULL DEFAULT '',
			chain_trace_id TEXT NOT NULL DEFAULT '',
			input TEXT NOT NULL,
			state TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			cost_usd REAL NOT NULL DEFAULT 0,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			error_detail TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			started_at INTEGER,
			finished_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_executions_persona ON executions(persona_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_executions_chain ON executions(chain_trace_id) WHERE chain_trace_id != '';

		CREATE TABLE IF NOT EXISTS execution_traces (
			execution_id TEXT PRIMARY KEY,
			doc TEXT NOT NULL,
			saved_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS triggers (
			id TEXT PRIMARY KEY,
			persona_id TEXT NOT NULL,
			input TEXT NOT NULL,
			chain_trace_id TEXT NOT NULL DEFAULT '',
			model_override TEXT NOT NULL DEFAULT '',
			schedule_json TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			next_run_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_triggers_due ON triggers(enabled, next_run_at);

		CREATE TABLE IF NOT EXISTS rotation_checks (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			interval_ms INTEGER NOT NULL,
			next_check_at INTEGER NOT NULL,
			last_checked_at INTEGER
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// observe records the duration of one repository operation.
func observe(op string, start time.Time) {
	observability.RecordRepositoryOp(op, time.Since(start))
}

func msPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func timePtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}
