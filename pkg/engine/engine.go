package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/leowmjw/go-temporal-forecast/pkg/forecast"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// ErrStepBudgetExceeded is returned when a step takes longer than the configured budget
var ErrStepBudgetExceeded = errors.New("step budget exceeded")

// RefitPolicy controls whether a stepwise model is refitted before every step
type RefitPolicy string

const (
	RefitOnce    RefitPolicy = "once"
	RefitPerStep RefitPolicy = "per_step"
)

// ParseRefitPolicy validates a refit policy name
func ParseRefitPolicy(s string) (RefitPolicy, error) {
	switch p := RefitPolicy(s); p {
	case RefitOnce, RefitPerStep:
		return p, nil
	default:
		return "", fmt.Errorf("unknown refit policy %q", s)
	}
}

// State is the lifecycle of a run
type State int

const (
	Initialized State = iota
	Stepping
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "INITIALIZED"
	case Stepping:
		return "STEPPING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Observer is called before every prediction with a copy of what the model will see
type Observer func(step int, date time.Time, view forecast.History)

// Config configures an engine
type Config struct {
	Refit      RefitPolicy
	StepBudget time.Duration
	Observer   Observer
	Logger     *slog.Logger
}

// StepFailure aborts a run at a given step
type StepFailure struct {
	Step int
	Date time.Time
	Err  error
}

func (f *StepFailure) Error() string {
	return fmt.Sprintf("step %d (%s): %v", f.Step, f.Date.Format(time.DateOnly), f.Err)
}

func (f *StepFailure) Unwrap() error {
	return f.Err
}

// Engine runs one forecaster over a test horizon. Runs are sequential; use one
// engine per concurrent strategy.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

// New creates an engine
func New(cfg Config) *Engine {
	if cfg.Refit == "" {
		cfg.Refit = RefitPerStep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// State returns the state of the latest run
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// target is what the engine may know about a test date: the date and its real covariates
type target struct {
	date       time.Time
	covariates timeline.CovariateRow
}

func targets(test timeline.Series) []target {
	out := make([]target, test.Len())
	for i := range out {
		p := test.At(i)
		out[i] = target{date: p.Date, covariates: p.Covariates}
	}
	return out
}

// RunStepwise forecasts the test horizon one step at a time. Each prediction is
// appended to the rolling history together with the real covariates of its date;
// test responses are never read.
func (e *Engine) RunStepwise(ctx context.Context, f forecast.StepwiseForecaster, train, test timeline.Series) ([]timeline.ForecastResult, error) {
	e.setState(Initialized)
	steps := targets(test)
	if len(steps) == 0 {
		e.setState(Failed)
		return nil, fmt.Errorf("%w: empty test horizon", timeline.ErrEmptyPartition)
	}

	history := NewRollingHistory(train)
	logger := e.logger.With("forecaster", f.Kind(), "refit", e.cfg.Refit, "horizon", len(steps))
	logger.Debug("Starting stepwise run", "history", history.Len())

	var model forecast.StepModel
	if e.cfg.Refit == RefitOnce {
		err := e.withinBudget(ctx, func(stepCtx context.Context) error {
			var err error
			model, err = f.Fit(stepCtx, history.View())
			return err
		})
		if err != nil {
			return nil, e.fail(logger, 0, steps[0].date, fmt.Errorf("fit: %w", err))
		}
	}

	e.setState(Stepping)
	results := make([]timeline.ForecastResult, 0, len(steps))
	for i, step := range steps {
		if !history.LastDate().Before(step.date) && history.Len() > 0 {
			return nil, e.fail(logger, i, step.date, fmt.Errorf("%w: history reaches %s", timeline.ErrNotOrdered, history.LastDate().Format(time.DateOnly)))
		}

		var pred timeline.Prediction
		err := e.withinBudget(ctx, func(stepCtx context.Context) error {
			if e.cfg.Refit == RefitPerStep {
				var err error
				if model, err = f.Fit(stepCtx, history.View()); err != nil {
					return fmt.Errorf("fit: %w", err)
				}
			}

			view := history.View()
			if e.cfg.Observer != nil {
				e.cfg.Observer(i, step.date, view.Clone())
			}
			var err error
			if pred, err = model.PredictOne(stepCtx, view, step.covariates.Clone()); err != nil {
				return fmt.Errorf("predict: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, e.fail(logger, i, step.date, err)
		}
		if err := checkFinite(pred); err != nil {
			return nil, e.fail(logger, i, step.date, err)
		}
		if err := history.Append(step.date, pred.Value, step.covariates); err != nil {
			return nil, e.fail(logger, i, step.date, err)
		}

		logger.Debug("Step complete", "step", i, "date", step.date.Format(time.DateOnly), "value", pred.Value)
		results = append(results, timeline.ForecastResult{Date: step.date, Prediction: pred})
	}

	e.setState(Done)
	logger.Debug("Stepwise run complete", "predictions", len(results))
	return results, nil
}

// RunFixed fits once on the training history and forecasts the whole horizon
// from the future covariates
func (e *Engine) RunFixed(ctx context.Context, f forecast.FixedHorizonForecaster, train, test timeline.Series) ([]timeline.ForecastResult, error) {
	e.setState(Initialized)
	steps := targets(test)
	if len(steps) == 0 {
		e.setState(Failed)
		return nil, fmt.Errorf("%w: empty test horizon", timeline.ErrEmptyPartition)
	}

	history := NewRollingHistory(train)
	logger := e.logger.With("forecaster", f.Kind(), "horizon", len(steps))
	logger.Debug("Starting fixed-horizon run", "history", history.Len())

	future := make([]timeline.CovariateRow, len(steps))
	for i, step := range steps {
		future[i] = step.covariates.Clone()
	}

	var preds []timeline.Prediction
	err := e.withinBudget(ctx, func(stepCtx context.Context) error {
		view := history.View()
		model, err := f.Fit(stepCtx, view)
		if err != nil {
			return fmt.Errorf("fit: %w", err)
		}
		e.setState(Stepping)
		if e.cfg.Observer != nil {
			e.cfg.Observer(0, steps[0].date, view.Clone())
		}
		if preds, err = model.Predict(stepCtx, len(steps), future); err != nil {
			return fmt.Errorf("predict: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, e.fail(logger, 0, steps[0].date, err)
	}
	if len(preds) != len(steps) {
		return nil, e.fail(logger, 0, steps[0].date, fmt.Errorf("%w: %d predictions for %d steps", timeline.ErrLengthMismatch, len(preds), len(steps)))
	}

	results := make([]timeline.ForecastResult, len(steps))
	for i, step := range steps {
		if err := checkFinite(preds[i]); err != nil {
			return nil, e.fail(logger, i, step.date, err)
		}
		results[i] = timeline.ForecastResult{Date: step.date, Prediction: preds[i]}
	}

	e.setState(Done)
	logger.Debug("Fixed-horizon run complete", "predictions", len(results))
	return results, nil
}

// withinBudget runs fn under the step budget; exceeding it is an error even when
// fn does not observe its context
func (e *Engine) withinBudget(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.cfg.StepBudget <= 0 {
		return fn(ctx)
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.StepBudget)
	defer cancel()

	started := time.Now()
	err := fn(stepCtx)
	elapsed := time.Since(started)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if elapsed > e.cfg.StepBudget || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: took %s, budget %s", ErrStepBudgetExceeded, elapsed.Round(time.Millisecond), e.cfg.StepBudget)
	}
	return err
}

func (e *Engine) fail(logger *slog.Logger, step int, date time.Time, err error) error {
	e.setState(Failed)
	logger.Warn("Run aborted", "step", step, "date", date.Format(time.DateOnly), "error", err)
	return &StepFailure{Step: step, Date: date, Err: err}
}

func checkFinite(p timeline.Prediction) error {
	for _, v := range []float64{p.Value, p.Lower, p.Upper} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite prediction %+v", timeline.ErrDomain, p)
		}
	}
	return nil
}
