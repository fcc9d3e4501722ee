package experiment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leowmjw/go-temporal-forecast/pkg/engine"
	"github.com/leowmjw/go-temporal-forecast/pkg/forecast"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// ErrInvalidExperiment is returned by Validate
var ErrInvalidExperiment = errors.New("invalid experiment")

// Strategy is one competing forecaster configuration
type Strategy struct {
	Name   string             `json:"name"`
	Kind   forecast.Kind      `json:"kind"`
	Refit  engine.RefitPolicy `json:"refit,omitempty"`
	Lags   int                `json:"lags,omitempty"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Options returns the forecaster options of the strategy
func (s Strategy) Options() forecast.Options {
	params := make(map[string]float64, len(s.Params))
	for k, v := range s.Params {
		params[k] = v
	}
	return forecast.Options{Lags: s.Lags, Params: params}
}

// Experiment compares strategies on one series split at a cutoff date
type Experiment struct {
	Name       string             `json:"name"`
	SeriesID   string             `json:"series_id"`
	Cutoff     time.Time          `json:"cutoff"`
	Frequency  timeline.Frequency `json:"frequency,omitempty"`
	Covariates []string           `json:"covariates,omitempty"`
	StepBudget time.Duration      `json:"step_budget,omitempty"`
	Strategies []Strategy         `json:"strategies"`
}

// UnmarshalJSON accepts cutoff as YYYY-MM-DD or RFC3339, and step_budget as a
// duration string such as "30s" or as nanoseconds.
func (e *Experiment) UnmarshalJSON(data []byte) error {
	type plain Experiment
	aux := struct {
		*plain
		Cutoff     json.RawMessage `json:"cutoff"`
		StepBudget json.RawMessage `json:"step_budget,omitempty"`
	}{plain: (*plain)(e)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if isSet(aux.Cutoff) {
		var s string
		if err := json.Unmarshal(aux.Cutoff, &s); err != nil {
			return fmt.Errorf("cutoff: %w", err)
		}
		cutoff, err := ParseDate(s)
		if err != nil {
			return fmt.Errorf("cutoff: %w", err)
		}
		e.Cutoff = cutoff
	}

	if isSet(aux.StepBudget) {
		if aux.StepBudget[0] == '"' {
			var s string
			if err := json.Unmarshal(aux.StepBudget, &s); err != nil {
				return fmt.Errorf("step_budget: %w", err)
			}
			budget, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("step_budget: %w", err)
			}
			e.StepBudget = budget
		} else {
			var ns int64
			if err := json.Unmarshal(aux.StepBudget, &ns); err != nil {
				return fmt.Errorf("step_budget: %w", err)
			}
			e.StepBudget = time.Duration(ns)
		}
	}
	return nil
}

func isSet(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// ParseDate reads a calendar date (YYYY-MM-DD) or an RFC3339 timestamp
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC3339", s)
	}
	return t.UTC(), nil
}

// Validate checks the experiment against the kinds known to registry
func (e Experiment) Validate(registry *forecast.Registry) error {
	var errs []error

	if e.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if e.Cutoff.IsZero() {
		errs = append(errs, errors.New("cutoff is required"))
	}
	if _, err := timeline.ParseFrequency(string(e.Frequency)); err != nil {
		errs = append(errs, err)
	}
	if e.StepBudget < 0 {
		errs = append(errs, fmt.Errorf("step budget %s is negative", e.StepBudget))
	}
	seenCovariate := make(map[string]bool)
	for _, c := range e.Covariates {
		if seenCovariate[c] {
			errs = append(errs, fmt.Errorf("covariate %q listed twice", c))
		}
		seenCovariate[c] = true
	}

	if len(e.Strategies) == 0 {
		errs = append(errs, errors.New("at least one strategy is required"))
	}
	seen := make(map[string]bool)
	for i, s := range e.Strategies {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("strategy %d: name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("strategy %q: duplicate name", s.Name))
		}
		seen[s.Name] = true

		if !registry.Has(s.Kind) {
			errs = append(errs, fmt.Errorf("strategy %q: %w: %q", s.Name, forecast.ErrUnknownKind, s.Kind))
		}
		if s.Refit != "" {
			if _, err := engine.ParseRefitPolicy(string(s.Refit)); err != nil {
				errs = append(errs, fmt.Errorf("strategy %q: %w", s.Name, err))
			}
		}
		if s.Lags < 0 {
			errs = append(errs, fmt.Errorf("strategy %q: lags must not be negative", s.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidExperiment, errors.Join(errs...))
	}
	return nil
}

// Mode names how a strategy was executed
type Mode string

const (
	ModeFixed    Mode = "fixed"
	ModeStepwise Mode = "stepwise"
)

// StrategyResult is the outcome of one strategy. A failed strategy carries Error
// and no forecasts.
type StrategyResult struct {
	Strategy   string                       `json:"strategy"`
	Kind       forecast.Kind                `json:"kind"`
	Mode       Mode                         `json:"mode,omitempty"`
	Refit      engine.RefitPolicy           `json:"refit,omitempty"`
	Forecasts  []timeline.ForecastResult    `json:"forecasts,omitempty"`
	Series     timeline.ReconstructedSeries `json:"series,omitempty"`
	Accuracy   *timeline.AccuracyRecord     `json:"accuracy,omitempty"`
	Error      string                       `json:"error,omitempty"`
	FailedStep *int                         `json:"failed_step,omitempty"`
	Duration   time.Duration                `json:"duration"`
}

// Succeeded reports whether the strategy produced a score
func (r StrategyResult) Succeeded() bool {
	return r.Error == "" && r.Accuracy != nil
}

// Report collects every strategy result of an experiment run
type Report struct {
	ID           string                    `json:"id"`
	Experiment   string                    `json:"experiment"`
	SeriesID     string                    `json:"series_id,omitempty"`
	Cutoff       time.Time                 `json:"cutoff"`
	TrainSize    int                       `json:"train_size"`
	TestSize     int                       `json:"test_size"`
	TrainSummary timeline.Summary          `json:"train_summary"`
	TestSummary  timeline.Summary          `json:"test_summary"`
	Results      []StrategyResult          `json:"results"`
	Leaderboard  []timeline.AccuracyRecord `json:"leaderboard,omitempty"`
	Best         string                    `json:"best,omitempty"`
}

// NewReport describes the train and test windows of an experiment
func NewReport(id string, exp Experiment, train, test timeline.Series) *Report {
	return &Report{
		ID:           id,
		Experiment:   exp.Name,
		SeriesID:     exp.SeriesID,
		Cutoff:       exp.Cutoff,
		TrainSize:    train.Len(),
		TestSize:     test.Len(),
		TrainSummary: timeline.Summarize(timeline.DiffLogValues(train)),
		TestSummary:  timeline.Summarize(timeline.DiffLogValues(test)),
	}
}
