// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/voice_metrics/internal/app/domain/trial"
	"github.com/R3E-Network/voice_metrics/internal/app/storage"
	"github.com/R3E-Network/voice_metrics/internal/app/storage/memory"
)

// Store operation names accepted by MockTrialStore.FailOn.
const (
	OpCreate         = "create"
	OpList           = "list"
	OpCount          = "count"
	OpDeleteAll      = "delete_all"
	OpCountByCommand = "count_by_command"
)

// MockTrialStore is a TrialStore backed by the memory store that records calls
// and can be told to fail or return canned command groups.
type MockTrialStore struct {
	inner *memory.Store

	mu       sync.RWMutex
	failures map[string]error
	groups   []trial.CommandCount
	queries  []trial.Query
	calls    map[string]int
}

var _ storage.TrialStore = (*MockTrialStore)(nil)

// NewMockTrialStore creates an empty mock store.
func NewMockTrialStore() *MockTrialStore {
	return &MockTrialStore{
		inner:    memory.New(),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// FailOn makes the named operations return err. A nil err clears them.
func (m *MockTrialStore) FailOn(err error, ops ...string) *MockTrialStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if err == nil {
			delete(m.failures, op)
		} else {
			m.failures[op] = err
		}
	}
	return m
}

// FailAll makes every operation return err.
func (m *MockTrialStore) FailAll(err error) *MockTrialStore {
	return m.FailOn(err, OpCreate, OpList, OpCount, OpDeleteAll, OpCountByCommand)
}

// WithGroups overrides CountByCommand with a canned result.
func (m *MockTrialStore) WithGroups(groups ...trial.CommandCount) *MockTrialStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = groups
	return m
}

// Calls returns how often op was invoked.
func (m *MockTrialStore) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// Queries returns the listing queries received, oldest first.
func (m *MockTrialStore) Queries() []trial.Query {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]trial.Query, len(m.queries))
	copy(out, m.queries)
	return out
}

func (m *MockTrialStore) enter(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	return m.failures[op]
}

func (m *MockTrialStore) CreateTrial(ctx context.Context, t trial.Trial) (trial.Trial, error) {
	if err := m.enter(OpCreate); err != nil {
		return trial.Trial{}, err
	}
	return m.inner.CreateTrial(ctx, t)
}

func (m *MockTrialStore) ListTrials(ctx context.Context, q trial.Query) ([]trial.Trial, error) {
	if err := m.enter(OpList); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
	return m.inner.ListTrials(ctx, q)
}

func (m *MockTrialStore) CountTrials(ctx context.Context, f trial.Filter) (int, error) {
	if err := m.enter(OpCount); err != nil {
		return 0, err
	}
	return m.inner.CountTrials(ctx, f)
}

func (m *MockTrialStore) DeleteAllTrials(ctx context.Context) (int, error) {
	if err := m.enter(OpDeleteAll); err != nil {
		return 0, err
	}
	return m.inner.DeleteAllTrials(ctx)
}

func (m *MockTrialStore) CountByCommand(ctx context.Context) ([]trial.CommandCount, error) {
	if err := m.enter(OpCountByCommand); err != nil {
		return nil, err
	}
	m.mu.RLock()
	groups := m.groups
	m.mu.RUnlock()
	if groups != nil {
		out := make([]trial.CommandCount, len(groups))
		copy(out, groups)
		return out, nil
	}
	return m.inner.CountByCommand(ctx)
}

// NewTrial returns a valid trial for person and source with deterministic
// metrics derived from responseTime.
func NewTrial(person string, source trial.Source, responseTime float64) trial.Trial {
	return trial.Trial{
		ID:           GenerateID(),
		Person:       person,
		Source:       source,
		Command:      trial.CommandUnknown,
		ResponseTime: responseTime,
		Accuracy:     1 - responseTime/10000,
		ErrorRate:    responseTime / 10000,
		Timestamp:    Now(),
	}
}

// GenerateID generates a new UUID string.
func GenerateID() string {
	return uuid.NewString()
}

// Now returns the current UTC time.
func Now() time.Time {
	return time.Now().UTC()
}
