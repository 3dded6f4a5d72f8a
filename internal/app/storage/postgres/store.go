package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/voice_metrics/internal/app/domain/trial"
	"github.com/R3E-Network/voice_metrics/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.TrialStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// --- TrialStore -------------------------------------------------------------

func (s *Store) CreateTrial(ctx context.Context, t trial.Trial) (trial.Trial, error) {
	if t.Command == "" {
		t.Command = trial.CommandUnknown
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	// TIMESTAMPTZ keeps microseconds
	t.Timestamp = t.Timestamp.UTC().Truncate(time.Microsecond)
	if err := t.Validate(); err != nil {
		return trial.Trial{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(storage.InsertTrialSQL),
		t.ID, t.Person, string(t.Source), string(t.Command),
		t.ResponseTime, t.Accuracy, t.ErrorRate, t.Timestamp)
	if err != nil {
		return trial.Trial{}, err
	}
	return t, nil
}

func (s *Store) ListTrials(ctx context.Context, q trial.Query) ([]trial.Trial, error) {
	query, args := storage.SelectTrialsSQL(q)

	trials := []trial.Trial{}
	if err := s.db.SelectContext(ctx, &trials, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for i := range trials {
		trials[i].Timestamp = trials[i].Timestamp.UTC()
	}
	return trials, nil
}

func (s *Store) CountTrials(ctx context.Context, f trial.Filter) (int, error) {
	query, args := storage.CountTrialsSQL(f)

	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(query), args...); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) DeleteAllTrials(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, storage.DeleteAllTrialsSQL)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func (s *Store) CountByCommand(ctx context.Context) ([]trial.CommandCount, error) {
	groups := []trial.CommandCount{}
	if err := s.db.SelectContext(ctx, &groups, storage.CountByCommandSQL); err != nil {
		return nil, err
	}
	return groups, nil
}
