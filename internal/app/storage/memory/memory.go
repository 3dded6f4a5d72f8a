package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/voice_metrics/internal/app/domain/trial"
	"github.com/R3E-Network/voice_metrics/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu      sync.RWMutex
	nextSeq int64
	trials  []record
}

// record pairs a trial with its insertion sequence.
type record struct {
	seq   int64
	trial trial.Trial
}

var _ storage.TrialStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{nextSeq: 1}
}

// TrialStore implementation ---------------------------------------------------

func (s *Store) CreateTrial(_ context.Context, t trial.Trial) (trial.Trial, error) {
	if t.Command == "" {
		t.Command = trial.CommandUnknown
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	if err := t.Validate(); err != nil {
		return trial.Trial{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.trials = append(s.trials, record{seq: s.nextSeq, trial: t})
	s.nextSeq++
	return t, nil
}

func (s *Store) ListTrials(_ context.Context, q trial.Query) ([]trial.Trial, error) {
	s.mu.RLock()
	matched := make([]record, 0, len(s.trials))
	for _, rec := range s.trials {
		if q.Filter.Matches(rec.trial) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	sortRecords(matched, q.Sort)

	if q.Skip > 0 {
		if q.Skip >= len(matched) {
			return []trial.Trial{}, nil
		}
		matched = matched[q.Skip:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	result := make([]trial.Trial, 0, len(matched))
	for _, rec := range matched {
		result = append(result, rec.trial)
	}
	return result, nil
}

func (s *Store) CountTrials(_ context.Context, f trial.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.trials {
		if f.Matches(rec.trial) {
			count++
		}
	}
	return count, nil
}

func (s *Store) DeleteAllTrials(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.trials)
	s.trials = nil
	return removed, nil
}

func (s *Store) CountByCommand(_ context.Context) ([]trial.CommandCount, error) {
	s.mu.RLock()
	counts := make(map[string]int)
	for _, rec := range s.trials {
		counts[string(rec.trial.Command)]++
	}
	s.mu.RUnlock()

	result := make([]trial.CommandCount, 0, len(counts))
	for cmd, n := range counts {
		result = append(result, trial.CommandCount{Command: cmd, Count: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Command < result[j].Command
	})
	return result, nil
}

// Helpers ---------------------------------------------------------------------

// sortRecords orders records by the requested key, breaking ties by insertion
// order the way the SQL stores do.
func sortRecords(recs []record, order trial.Sort) {
	switch order {
	case trial.SortResponseTimeAsc:
		sort.SliceStable(recs, func(i, j int) bool {
			a, b := recs[i], recs[j]
			if a.trial.ResponseTime != b.trial.ResponseTime {
				return a.trial.ResponseTime < b.trial.ResponseTime
			}
			return a.seq < b.seq
		})
	default:
		sort.SliceStable(recs, func(i, j int) bool {
			a, b := recs[i], recs[j]
			if !a.trial.Timestamp.Equal(b.trial.Timestamp) {
				return a.trial.Timestamp.After(b.trial.Timestamp)
			}
			return a.seq > b.seq
		})
	}
}
