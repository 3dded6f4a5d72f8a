// Package migrations bootstraps the trials schema on SQL backends.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect selects the schema flavour.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS trials (
		id            TEXT PRIMARY KEY,
		seq           BIGSERIAL,
		person        TEXT NOT NULL,
		source        TEXT NOT NULL CHECK (source IN ('webkit', 'onnx')),
		command       TEXT NOT NULL DEFAULT 'unknown',
		response_time DOUBLE PRECISION NOT NULL,
		accuracy      DOUBLE PRECISION NOT NULL,
		error_rate    DOUBLE PRECISION NOT NULL,
		timestamp     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS trials_timestamp_idx ON trials (timestamp DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS trials_person_idx ON trials (person)`,
	`CREATE INDEX IF NOT EXISTS trials_response_time_idx ON trials (response_time, seq)`,
	`CREATE INDEX IF NOT EXISTS trials_command_idx ON trials (command)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS trials (
		seq           INTEGER PRIMARY KEY AUTOINCREMENT,
		id            TEXT NOT NULL UNIQUE,
		person        TEXT NOT NULL,
		source        TEXT NOT NULL CHECK (source IN ('webkit', 'onnx')),
		command       TEXT NOT NULL DEFAULT 'unknown',
		response_time REAL NOT NULL,
		accuracy      REAL NOT NULL,
		error_rate    REAL NOT NULL,
		timestamp     INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS trials_timestamp_idx ON trials (timestamp DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS trials_person_idx ON trials (person)`,
	`CREATE INDEX IF NOT EXISTS trials_response_time_idx ON trials (response_time, seq)`,
	`CREATE INDEX IF NOT EXISTS trials_command_idx ON trials (command)`,
}

// Statements returns the ordered schema statements for a dialect.
func Statements(d Dialect) ([]string, error) {
	switch d {
	case Postgres:
		return postgresSchema, nil
	case SQLite:
		return sqliteSchema, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", d)
	}
}

// Apply runs every schema statement for d. Statements are idempotent so Apply
// is safe to call on each startup.
func Apply(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts, err := Statements(d)
	if err != nil {
		return err
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %s migration %d: %w", d, i+1, err)
		}
	}
	return nil
}
