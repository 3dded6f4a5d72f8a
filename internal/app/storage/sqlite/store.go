// Package sqlite persists trials in an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/voice_metrics/internal/app/domain/trial"
	"github.com/R3E-Network/voice_metrics/internal/app/storage"
	"github.com/R3E-Network/voice_metrics/internal/platform/migrations"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for trial data.
type Store struct {
	db *sql.DB
}

var _ storage.TrialStore = (*Store)(nil)

// Open opens or creates the SQLite database at path and applies migrations.
// The special path ":memory:" yields a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := migrations.Apply(ctx, db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateTrial(ctx context.Context, t trial.Trial) (trial.Trial, error) {
	if t.Command == "" {
		t.Command = trial.CommandUnknown
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	// stored as Unix microseconds, matching the Postgres precision
	t.Timestamp = t.Timestamp.UTC().Truncate(time.Microsecond)
	if err := t.Validate(); err != nil {
		return trial.Trial{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, storage.InsertTrialSQL,
		t.ID, t.Person, string(t.Source), string(t.Command),
		t.ResponseTime, t.Accuracy, t.ErrorRate, t.Timestamp.UnixMicro())
	if err != nil {
		return trial.Trial{}, err
	}
	return t, nil
}

func (s *Store) ListTrials(ctx context.Context, q trial.Query) ([]trial.Trial, error) {
	query, args := storage.SelectTrialsSQL(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trials := []trial.Trial{}
	for rows.Next() {
		var (
			t       trial.Trial
			source  string
			command string
			micros  int64
		)
		if err := rows.Scan(&t.ID, &t.Person, &source, &command, &t.ResponseTime, &t.Accuracy, &t.ErrorRate, &micros); err != nil {
			return nil, err
		}
		t.Source = trial.Source(source)
		t.Command = trial.Command(command)
		t.Timestamp = time.UnixMicro(micros).UTC()
		trials = append(trials, t)
	}
	return trials, rows.Err()
}

func (s *Store) CountTrials(ctx context.Context, f trial.Filter) (int, error) {
	query, args := storage.CountTrialsSQL(f)
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) DeleteAllTrials(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, storage.DeleteAllTrialsSQL)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) CountByCommand(ctx context.Context) ([]trial.CommandCount, error) {
	rows, err := s.db.QueryContext(ctx, storage.CountByCommandSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []trial.CommandCount{}
	for rows.Next() {
		var g trial.CommandCount
		if err := rows.Scan(&g.Command, &g.Count); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
