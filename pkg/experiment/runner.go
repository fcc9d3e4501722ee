package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leowmjw/go-temporal-forecast/pkg/engine"
	"github.com/leowmjw/go-temporal-forecast/pkg/evaluation"
	"github.com/leowmjw/go-temporal-forecast/pkg/forecast"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// Prepare builds the series of an experiment and splits it at the cutoff.
// Errors here are structural and abort every strategy.
func Prepare(observations []timeline.Observation, exp Experiment) (series, train, test timeline.Series, err error) {
	series, err = timeline.NewSeries(observations, exp.Frequency, exp.Covariates)
	if err != nil {
		return timeline.Series{}, timeline.Series{}, timeline.Series{}, fmt.Errorf("build series: %w", err)
	}
	train, test, err = timeline.Split(series, exp.Cutoff)
	if err != nil {
		return timeline.Series{}, timeline.Series{}, timeline.Series{}, fmt.Errorf("split: %w", err)
	}
	return series, train, test, nil
}

// RunStrategy runs one strategy end to end: split, forecast, reconstruct and score.
// Failures are reported in the result, never returned. observer may be nil.
func RunStrategy(ctx context.Context, logger *slog.Logger, registry *forecast.Registry, series timeline.Series, exp Experiment, strategy Strategy, observer engine.Observer) StrategyResult {
	started := time.Now()
	result := StrategyResult{Strategy: strategy.Name, Kind: strategy.Kind}
	logger = logger.With("experiment", exp.Name, "strategy", strategy.Name, "kind", strategy.Kind)

	fail := func(err error) StrategyResult {
		result.Error = err.Error()
		var failure *engine.StepFailure
		if errors.As(err, &failure) {
			step := failure.Step
			result.FailedStep = &step
		}
		result.Forecasts = nil
		result.Duration = time.Since(started)
		logger.Error("Strategy failed", "error", err, "duration", result.Duration)
		return result
	}

	train, test, err := timeline.Split(series, exp.Cutoff)
	if err != nil {
		return fail(err)
	}

	f, err := registry.Build(strategy.Kind, strategy.Options())
	if err != nil {
		return fail(err)
	}

	cfg := engine.Config{StepBudget: exp.StepBudget, Observer: observer, Logger: logger}
	var forecasts []timeline.ForecastResult
	switch model := f.(type) {
	case forecast.FixedHorizonForecaster:
		result.Mode = ModeFixed
		forecasts, err = engine.New(cfg).RunFixed(ctx, model, train, test)
	case forecast.StepwiseForecaster:
		result.Mode = ModeStepwise
		cfg.Refit = refitPolicy(strategy, model)
		result.Refit = cfg.Refit
		forecasts, err = engine.New(cfg).RunStepwise(ctx, model, train, test)
	default:
		err = fmt.Errorf("%w: %q implements neither forecasting mode", forecast.ErrUnknownKind, strategy.Kind)
	}
	if err != nil {
		return fail(err)
	}
	result.Forecasts = forecasts

	anchor, err := evaluation.Anchor(train)
	if err != nil {
		return fail(err)
	}
	reconstructed, err := evaluation.Reconstruct(anchor, forecasts, test)
	if err != nil {
		return fail(err)
	}
	record, err := evaluation.Score(strategy.Name, reconstructed)
	if err != nil {
		return fail(err)
	}

	result.Series = reconstructed
	result.Accuracy = &record
	result.Duration = time.Since(started)
	logger.Info("Strategy complete", "rmse", record.RMSE, "mae", record.MAE, "mape", record.MAPE, "duration", result.Duration)
	return result
}

func refitPolicy(strategy Strategy, f forecast.StepwiseForecaster) engine.RefitPolicy {
	if strategy.Refit != "" {
		return strategy.Refit
	}
	if p, ok := f.(forecast.SingleFitPreferrer); ok && p.PrefersSingleFit() {
		return engine.RefitOnce
	}
	return engine.RefitPerStep
}

// Rank fills the leaderboard and best model from the successful results
func (r *Report) Rank() error {
	var records []timeline.AccuracyRecord
	for _, res := range r.Results {
		if res.Succeeded() {
			records = append(records, *res.Accuracy)
		}
	}

	board, err := evaluation.Leaderboard(records)
	if err != nil {
		return err
	}
	r.Leaderboard = board
	r.Best = board[0].Model
	return nil
}

// Runner executes experiments locally, running strategies concurrently
type Runner struct {
	registry    *forecast.Registry
	logger      *slog.Logger
	concurrency int
}

// NewRunner creates a runner; concurrency <= 0 runs every strategy at once
func NewRunner(registry *forecast.Registry, logger *slog.Logger, concurrency int) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{registry: registry, logger: logger, concurrency: concurrency}
}

// Run evaluates every strategy of exp on the observations
func (r *Runner) Run(ctx context.Context, observations []timeline.Observation, exp Experiment) (*Report, error) {
	if err := exp.Validate(r.registry); err != nil {
		return nil, err
	}

	series, train, test, err := Prepare(observations, exp)
	if err != nil {
		return nil, err
	}

	report := NewReport(uuid.NewString(), exp, train, test)
	report.Results = make([]StrategyResult, len(exp.Strategies))

	r.logger.Info("Running experiment", "experiment", exp.Name, "id", report.ID,
		"strategies", len(exp.Strategies), "train", train.Len(), "test", test.Len())

	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, strategy := range exp.Strategies {
		// each strategy owns its copy of the data
		own := series.Slice(0, series.Len())
		g.Go(func() error {
			report.Results[i] = RunStrategy(gctx, r.logger, r.registry, own, exp, strategy, nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := report.Rank(); err != nil {
		r.logger.Warn("No strategy succeeded", "experiment", exp.Name, "error", err)
	} else {
		r.logger.Info("Experiment complete", "experiment", exp.Name, "best", report.Best)
	}
	return report, nil
}
