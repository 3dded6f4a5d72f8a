package trials

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/R3E-Network/voice_metrics/internal/app/domain/trial"
	"github.com/R3E-Network/voice_metrics/internal/app/metrics"
	"github.com/R3E-Network/voice_metrics/internal/app/storage"
	apperrors "github.com/R3E-Network/voice_metrics/internal/errors"
	"github.com/R3E-Network/voice_metrics/pkg/logger"
)

// Service answers trial writes and statistical queries.
type Service struct {
	store storage.TrialStore
	log   *logger.Logger
	now   func() time.Time
}

// New constructs a trial service.
func New(store storage.TrialStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("trials")
	}
	return &Service{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// ListOptions selects one page of trials. A nil Person lists everyone.
type ListOptions struct {
	Person *string
	Page   int
	Limit  int
}

// Page is one page of trials, newest first.
type Page struct {
	Trials []trial.Trial
	Total  int
	Page   int
	Pages  int
}

// TrendPoint is one trial in a comparison trend.
type TrendPoint struct {
	Accuracy     float64   `json:"accuracy"`
	ResponseTime float64   `json:"responseTime"`
	ErrorRate    float64   `json:"errorRate"`
	Timestamp    time.Time `json:"timestamp"`
}

// SourceSummary aggregates the recent trials of one source.
type SourceSummary struct {
	Person          string       `json:"person"`
	AvgResponseTime *float64     `json:"avgResponseTime"`
	AvgAccuracy     *float64     `json:"avgAccuracy"`
	AvgErrorRate    *float64     `json:"avgErrorRate"`
	Count           int          `json:"count"`
	Trend           []TrendPoint `json:"trend"`
}

// FastTrial is one entry of a fastest-trials ranking.
type FastTrial struct {
	ResponseTime float64       `json:"responseTime"`
	Accuracy     float64       `json:"accuracy"`
	ErrorRate    float64       `json:"errorRate"`
	Timestamp    time.Time     `json:"timestamp"`
	Source       trial.Source  `json:"source"`
	Command      trial.Command `json:"command"`
}

// FastestSummary ranks the fastest trials and averages the fetched window.
type FastestSummary struct {
	Person       string      `json:"person"`
	Top3         []FastTrial `json:"top3"`
	AvgAccuracy  *float64    `json:"avgAccuracy"`
	AvgErrorRate *float64    `json:"avgErrorRate"`
}

// Add validates a submitted trial and persists it.
func (s *Service) Add(ctx context.Context, draft trial.Draft) (trial.Trial, error) {
	if draft.Person == nil {
		return trial.Trial{}, apperrors.Validation("Person field is required.", nil)
	}
	t, err := draft.Build(s.now())
	if err != nil {
		return trial.Trial{}, validationError(err)
	}

	created, err := s.store.CreateTrial(ctx, t)
	if err != nil {
		var verr *trial.ValidationError
		if errors.As(err, &verr) {
			return trial.Trial{}, validationError(err)
		}
		return trial.Trial{}, apperrors.Store("failed to save trial", err)
	}

	metrics.RecordTrialCreated(string(created.Source), string(created.Command))
	s.log.WithContext(ctx).
		WithField("trial_id", created.ID).
		WithField("person", created.Person).
		WithField("source", created.Source).
		WithField("command", created.Command).
		Debug("trial recorded")
	return created, nil
}

// List returns one page of trials sorted newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) (page Page, err error) {
	defer observe("list", time.Now(), &err)

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = DefaultPageSize
	}
	filter := trial.Filter{Person: opts.Person}

	total, err := s.store.CountTrials(ctx, filter)
	if err != nil {
		return Page{}, apperrors.Store("failed to count trials", err)
	}
	items, err := s.store.ListTrials(ctx, trial.Query{
		Filter: filter,
		Sort:   trial.SortTimestampDesc,
		Skip:   skipFor(opts.Page, opts.Limit),
		Limit:  opts.Limit,
	})
	if err != nil {
		return Page{}, apperrors.Store("failed to list trials", err)
	}

	return Page{
		Trials: items,
		Total:  total,
		Page:   opts.Page,
		Pages:  int(math.Ceil(float64(total) / float64(opts.Limit))),
	}, nil
}

// Compare summarizes the most recent trials of each source. window is a
// positive limit or Unbounded.
func (s *Service) Compare(ctx context.Context, person string, window int) (result map[trial.Source]SourceSummary, err error) {
	defer observe("compare", time.Now(), &err)

	everyone := IsAllPeople(person)
	result = make(map[trial.Source]SourceSummary, len(trial.Sources))
	for _, src := range trial.Sources {
		src := src
		filter := trial.Filter{Source: &src}
		if !everyone {
			p := person
			filter.Person = &p
		}

		fetched, listErr := s.store.ListTrials(ctx, trial.Query{
			Filter: filter,
			Sort:   trial.SortTimestampDesc,
			Limit:  limitFor(window),
		})
		if listErr != nil {
			return nil, apperrors.Store("failed to compare trials", listErr)
		}
		result[src] = summarize(person, everyone, fetched)
	}
	return result, nil
}

func summarize(person string, everyone bool, fetched []trial.Trial) SourceSummary {
	if len(fetched) == 0 {
		return SourceSummary{Person: person, Trend: []TrendPoint{}}
	}
	label := person
	if everyone {
		label = "All Trials"
	}
	trend := make([]TrendPoint, 0, len(fetched))
	for _, t := range fetched {
		trend = append(trend, TrendPoint{
			Accuracy:     t.Accuracy,
			ResponseTime: t.ResponseTime,
			ErrorRate:    t.ErrorRate,
			Timestamp:    t.Timestamp,
		})
	}
	return SourceSummary{
		Person:          label,
		AvgResponseTime: mean(fetched, responseTime),
		AvgAccuracy:     mean(fetched, accuracy),
		AvgErrorRate:    mean(fetched, errorRate),
		Count:           len(fetched),
		Trend:           trend,
	}
}

// CommandStats tallies commands over the most recent trials.
func (s *Service) CommandStats(ctx context.Context, window int) (counts map[string]int, err error) {
	defer observe("command_stats", time.Now(), &err)

	recent, err := s.store.ListTrials(ctx, trial.Query{
		Sort:  trial.SortTimestampDesc,
		Limit: limitFor(window),
	})
	if err != nil {
		return nil, apperrors.Store("failed to load command stats", err)
	}
	return tally(recent), nil
}

// CommandDistribution groups every trial by command, largest group first.
func (s *Service) CommandDistribution(ctx context.Context) (groups []trial.CommandCount, err error) {
	defer observe("command_distribution", time.Now(), &err)

	groups, err = s.store.CountByCommand(ctx)
	if err != nil {
		return nil, apperrors.Store("Server Error", err)
	}
	for i := range groups {
		if groups[i].Command == "" {
			groups[i].Command = "Unknown"
		}
	}
	return groups, nil
}

// TopFastest ranks the three fastest trials in a response-time window and
// averages accuracy and error rate over the whole window.
func (s *Service) TopFastest(ctx context.Context, person string, window int) (summary FastestSummary, err error) {
	defer observe("top_fastest", time.Now(), &err)

	var filter trial.Filter
	if !IsAllPeople(person) {
		p := person
		filter.Person = &p
	}
	fetched, err := s.store.ListTrials(ctx, trial.Query{
		Filter: filter,
		Sort:   trial.SortResponseTimeAsc,
		Limit:  limitFor(window),
	})
	if err != nil {
		return FastestSummary{}, apperrors.Store("failed to load fastest trials", err)
	}

	summary = FastestSummary{Person: person, Top3: []FastTrial{}}
	if len(fetched) == 0 {
		return summary, nil
	}
	summary.AvgAccuracy = mean(fetched, accuracy)
	summary.AvgErrorRate = mean(fetched, errorRate)
	for _, t := range fastest(fetched, 3) {
		summary.Top3 = append(summary.Top3, FastTrial{
			ResponseTime: t.ResponseTime,
			Accuracy:     t.Accuracy,
			ErrorRate:    t.ErrorRate,
			Timestamp:    t.Timestamp,
			Source:       t.Source,
			Command:      t.Command,
		})
	}
	return summary, nil
}

// Reset deletes every trial and reports how many were removed.
func (s *Service) Reset(ctx context.Context) (int, error) {
	removed, err := s.store.DeleteAllTrials(ctx)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("reset trials failed")
		return 0, apperrors.Store("Failed to reset trials.", err)
	}
	metrics.RecordTrialsDeleted(removed)
	s.log.WithContext(ctx).WithField("deleted", removed).Warn("all trial data reset")
	return removed, nil
}

func validationError(err error) error {
	return apperrors.Validation(err.Error(), err)
}

func skipFor(page, limit int) int {
	skip := (page - 1) * limit
	if skip < 0 || (limit > 0 && skip/limit != page-1) {
		return math.MaxInt32
	}
	return skip
}

func limitFor(window int) int {
	if window <= 0 {
		return 0
	}
	return window
}

func observe(op string, start time.Time, err *error) {
	metrics.ObserveQuery(op, time.Since(start), *err == nil)
}
