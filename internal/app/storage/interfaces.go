package storage

import (
	"context"

	"github.com/R3E-Network/voice_metrics/internal/app/domain/trial"
)

// TrialStore persists trial records.
type TrialStore interface {
	// CreateTrial validates and inserts a trial, assigning its ID.
	CreateTrial(ctx context.Context, t trial.Trial) (trial.Trial, error)
	// ListTrials returns trials matching q in the requested order.
	ListTrials(ctx context.Context, q trial.Query) ([]trial.Trial, error)
	CountTrials(ctx context.Context, f trial.Filter) (int, error)
	// DeleteAllTrials removes every trial and reports how many were removed.
	DeleteAllTrials(ctx context.Context) (int, error)
	// CountByCommand groups all trials by command, largest group first.
	CountByCommand(ctx context.Context) ([]trial.CommandCount, error)
}
