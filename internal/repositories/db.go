package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("record not found")

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// schemaStatements is portable between Postgres (lib/pq) and SQLite
// (modernc.org/sqlite). Timestamps and JSON documents are stored as TEXT.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pria_runs (
		run_id        TEXT PRIMARY KEY,
		brand_name    TEXT NOT NULL,
		brand_aliases TEXT NOT NULL DEFAULT '[]',
		competitors   TEXT NOT NULL DEFAULT '[]',
		status        TEXT NOT NULL,
		model         TEXT NOT NULL DEFAULT '',
		temperature   DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_tokens    INTEGER NOT NULL DEFAULT 0,
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		total_cost    DOUBLE PRECISION NOT NULL DEFAULT 0,
		error_message TEXT,
		started_at    TEXT,
		completed_at  TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pria_runs_status ON pria_runs (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS pria_prompts (
		prompt_id   TEXT PRIMARY KEY,
		run_id      TEXT NOT NULL,
		prompt_text TEXT NOT NULL,
		category_id TEXT,
		metadata    TEXT NOT NULL DEFAULT '{}',
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pria_prompts_run ON pria_prompts (run_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS pria_prompt_outcomes (
		outcome_id     TEXT PRIMARY KEY,
		run_id         TEXT NOT NULL,
		prompt_id      TEXT NOT NULL,
		category_id    TEXT NOT NULL,
		ranking        TEXT NOT NULL,
		flags          TEXT NOT NULL,
		brand_position INTEGER,
		score          DOUBLE PRECISION NOT NULL,
		raw_text       TEXT NOT NULL,
		truncated      BOOLEAN NOT NULL DEFAULT FALSE,
		model          TEXT NOT NULL DEFAULT '',
		input_tokens   INTEGER NOT NULL DEFAULT 0,
		output_tokens  INTEGER NOT NULL DEFAULT 0,
		cost           DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at     TEXT NOT NULL,
		UNIQUE (run_id, prompt_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pria_outcomes_run ON pria_prompt_outcomes (run_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS pria_outcome_overrides (
		override_id    TEXT PRIMARY KEY,
		outcome_id     TEXT NOT NULL,
		run_id         TEXT NOT NULL,
		ranking        TEXT NOT NULL,
		brand_position INTEGER,
		score          DOUBLE PRECISION NOT NULL,
		reason         TEXT NOT NULL DEFAULT '',
		applied_by     TEXT NOT NULL DEFAULT '',
		active         BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TEXT NOT NULL,
		reverted_at    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pria_overrides_outcome ON pria_outcome_overrides (outcome_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS pria_composite_scores (
		run_id         TEXT PRIMARY KEY,
		overall        DOUBLE PRECISION NOT NULL,
		by_category    TEXT NOT NULL DEFAULT '{}',
		prompt_count   INTEGER NOT NULL DEFAULT 0,
		override_count INTEGER NOT NULL DEFAULT 0,
		computed_at    TEXT NOT NULL
	)`,
}

// Connect opens and pings a database, applying pool settings when given.
func Connect(ctx context.Context, driverName, dsn string, maxOpen, maxIdle int, connMaxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if connMaxLifetime > 0 {
		db.SetConnMaxLifetime(connMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the tables used by the service if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
