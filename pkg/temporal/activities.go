package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/leowmjw/go-temporal-forecast/pkg/experiment"
	"github.com/leowmjw/go-temporal-forecast/pkg/forecast"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// Application error types reported by activities. All of them are non-retryable.
const (
	ErrTypeInvalidObservation = "InvalidObservation"
	ErrTypeInvalidExperiment  = "InvalidExperiment"
	ErrTypeUnusableSeries     = "UnusableSeries"
)

// StepProgress is the heartbeat detail recorded before every forecast step
type StepProgress struct {
	Strategy string    `json:"strategy"`
	Step     int       `json:"step"`
	Date     time.Time `json:"date"`
}

// Activities holds the dependencies of every forecasting activity
type Activities struct {
	logger   *slog.Logger
	store    SeriesStore
	registry *forecast.Registry
	decoder  *timeline.ObservationDecoder
}

// NewActivities creates the activities; a nil registry means the default forecasters
func NewActivities(logger *slog.Logger, store SeriesStore, registry *forecast.Registry) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = forecast.DefaultRegistry()
	}
	return &Activities{
		logger:   logger,
		store:    store,
		registry: registry,
		decoder:  timeline.NewObservationDecoder(),
	}
}

// AppendObservationsActivity validates raw observation records and persists them
func (a *Activities) AppendObservationsActivity(ctx context.Context, seriesID string, records [][]byte) error {
	a.logger.Info("Appending observations", "seriesID", seriesID, "count", len(records))

	if _, err := a.decoder.DecodeAll(records); err != nil {
		a.logger.Warn("Rejected observations", "seriesID", seriesID, "error", err)
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidObservation, err)
	}

	if err := a.store.AppendObservations(ctx, seriesID, records); err != nil {
		a.logger.Error("Failed to append to storage", "error", err)
		return fmt.Errorf("failed to append to storage: %w", err)
	}

	a.logger.Info("Successfully appended observations", "seriesID", seriesID, "count", len(records))
	return nil
}

// LoadSeriesActivity resolves the observations of an evaluation, validates the
// experiment against them and describes the train and test windows.
// Inline observations take precedence over the store.
func (a *Activities) LoadSeriesActivity(ctx context.Context, reportID string, request EvaluationRequest) (*LoadedSeries, error) {
	exp := request.Experiment
	a.logger.Info("Loading series", "experiment", exp.Name, "seriesID", exp.SeriesID, "inline", len(request.Observations))

	if err := exp.Validate(a.registry); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidExperiment, err)
	}

	observations := request.Observations
	if len(observations) == 0 {
		if exp.SeriesID == "" {
			err := errors.New("experiment has neither inline observations nor a series id")
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidExperiment, err)
		}
		records, err := a.store.LoadObservations(ctx, exp.SeriesID)
		if err != nil {
			return nil, fmt.Errorf("failed to load observations: %w", err)
		}
		observations, err = a.decoder.DecodeAll(records)
		if err != nil {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidObservation, err)
		}
		observations = arrivalOrdered(observations)
	}

	series, train, test, err := experiment.Prepare(observations, exp)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnusableSeries, err)
	}

	a.logger.Info("Successfully loaded series", "seriesID", exp.SeriesID, "train", train.Len(), "test", test.Len())
	return &LoadedSeries{
		Observations: series.Observations(),
		Report:       experiment.NewReport(reportID, exp, train, test),
	}, nil
}

// RunStrategyActivity evaluates one strategy, heartbeating before every forecast step.
// A failing strategy is reported inside the result, not as an activity error.
func (a *Activities) RunStrategyActivity(ctx context.Context, request StrategyRequest) (*experiment.StrategyResult, error) {
	exp := request.Experiment
	a.logger.Info("Running strategy", "experiment", exp.Name, "strategy", request.Strategy.Name)

	series, err := timeline.NewSeries(request.Observations, exp.Frequency, exp.Covariates)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnusableSeries, err)
	}

	activity.RecordHeartbeat(ctx, StepProgress{Strategy: request.Strategy.Name, Step: -1})
	observer := func(step int, date time.Time, _ forecast.History) {
		activity.RecordHeartbeat(ctx, StepProgress{Strategy: request.Strategy.Name, Step: step, Date: date})
	}

	result := experiment.RunStrategy(ctx, a.logger, a.registry, series, exp, request.Strategy, observer)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &result, nil
}

// RankActivity fills the leaderboard of a report. A report where every strategy
// failed is returned unranked.
func (a *Activities) RankActivity(ctx context.Context, report experiment.Report) (*experiment.Report, error) {
	if err := report.Rank(); err != nil {
		a.logger.Warn("Report left unranked", "report", report.ID, "error", err)
		return &report, nil
	}

	a.logger.Info("Ranked report", "report", report.ID, "best", report.Best, "ranked", len(report.Leaderboard))
	return &report, nil
}

// arrivalOrdered sorts stored observations by date. When a date was ingested
// more than once the latest arrival wins.
func arrivalOrdered(observations []timeline.Observation) []timeline.Observation {
	latest := make(map[int64]int, len(observations))
	for i, obs := range observations {
		latest[obs.Date.UnixNano()] = i
	}

	out := make([]timeline.Observation, 0, len(latest))
	for i, obs := range observations {
		if latest[obs.Date.UnixNano()] == i {
			out = append(out, obs)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
