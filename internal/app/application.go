package app

import (
	"github.com/R3E-Network/voice_metrics/internal/app/services/trials"
	"github.com/R3E-Network/voice_metrics/internal/app/storage"
	"github.com/R3E-Network/voice_metrics/internal/app/storage/memory"
	"github.com/R3E-Network/voice_metrics/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Trials storage.TrialStore
}

// Application ties domain services together.
type Application struct {
	log *logger.Logger

	Trials *trials.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, log *logger.Logger) *Application {
	if log == nil {
		log = logger.NewDefault("app")
	}

	if stores.Trials == nil {
		log.Warn("no trial store configured; using in-memory store")
		stores.Trials = memory.New()
	}

	return &Application{
		log:    log,
		Trials: trials.New(stores.Trials, log.Named("trials")),
	}
}
