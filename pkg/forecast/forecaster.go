package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// Kind names a forecaster family
type Kind string

const (
	KindNaive      Kind = "naive"
	KindETS        Kind = "ets"
	KindHolt       Kind = "holt"
	KindARIMA      Kind = "arima"
	KindARIMAX     Kind = "arimax"
	KindGARCH      Kind = "garch"
	KindRegression Kind = "regression"
	KindSequence   Kind = "sequence"
)

// History is the read-only window a model is fitted on or conditioned on.
// Values are diff-log prices; Covariates[i] belongs to Dates[i].
type History struct {
	Dates      []time.Time
	Values     []float64
	Covariates []timeline.CovariateRow
}

// NewHistory validates that the three sequences are aligned
func NewHistory(dates []time.Time, values []float64, covariates []timeline.CovariateRow) (History, error) {
	if len(dates) != len(values) || len(values) != len(covariates) {
		return History{}, fmt.Errorf("%w: history has %d dates, %d values and %d covariate rows",
			timeline.ErrLengthMismatch, len(dates), len(values), len(covariates))
	}
	return History{Dates: dates, Values: values, Covariates: covariates}, nil
}

// FromPoints builds a history from the points that carry a defined log difference
func FromPoints(points []timeline.Point) History {
	var h History
	for _, p := range points {
		if !p.HasDiff {
			continue
		}
		h.Dates = append(h.Dates, p.Date)
		h.Values = append(h.Values, p.DiffLogPrice)
		h.Covariates = append(h.Covariates, p.Covariates.Clone())
	}
	return h
}

// Len returns the number of entries
func (h History) Len() int {
	return len(h.Values)
}

// Clone returns a deep copy
func (h History) Clone() History {
	out := History{
		Dates:      append([]time.Time(nil), h.Dates...),
		Values:     append([]float64(nil), h.Values...),
		Covariates: make([]timeline.CovariateRow, len(h.Covariates)),
	}
	for i, row := range h.Covariates {
		out.Covariates[i] = row.Clone()
	}
	return out
}

// Schema returns the covariate schema of the history; an empty history has an empty schema
func (h History) Schema() timeline.Schema {
	if len(h.Covariates) == 0 {
		return timeline.Schema{}
	}
	return timeline.SchemaOf(h.Covariates[0])
}

// Forecaster is implemented by every model family
type Forecaster interface {
	Kind() Kind
}

// HorizonModel is a fitted fixed-horizon model
type HorizonModel interface {
	// Predict forecasts h steps given the known covariates of each future date
	Predict(ctx context.Context, h int, future []timeline.CovariateRow) ([]timeline.Prediction, error)
}

// FixedHorizonForecaster is fitted once and forecasts the whole horizon in one call
type FixedHorizonForecaster interface {
	Forecaster
	Fit(ctx context.Context, history History) (HorizonModel, error)
}

// StepModel is a fitted one-step-ahead model
type StepModel interface {
	// PredictOne forecasts the value that follows history, given the next date's covariates
	PredictOne(ctx context.Context, history History, next timeline.CovariateRow) (timeline.Prediction, error)
}

// StepwiseForecaster predicts one step at a time and may be refitted before every step
type StepwiseForecaster interface {
	Forecaster
	Fit(ctx context.Context, history History) (StepModel, error)
}

// SingleFitPreferrer is implemented by stepwise forecasters whose refit is too expensive
// to repeat each step
type SingleFitPreferrer interface {
	PrefersSingleFit() bool
}

func requireHistory(kind Kind, h History, minimum int) error {
	if len(h.Dates) != len(h.Values) || len(h.Values) != len(h.Covariates) {
		return fmt.Errorf("%s: %w: misaligned history", kind, timeline.ErrLengthMismatch)
	}
	if h.Len() < minimum {
		return fmt.Errorf("%s: %w: needs at least %d values, have %d", kind, timeline.ErrInsufficientData, minimum, h.Len())
	}
	return nil
}

func checkHorizon(kind Kind, schema timeline.Schema, h int, future []timeline.CovariateRow) error {
	if h < 1 {
		return fmt.Errorf("%s: horizon must be positive, got %d", kind, h)
	}
	if len(future) != h {
		return fmt.Errorf("%s: %w: horizon %d but %d covariate rows", kind, timeline.ErrLengthMismatch, h, len(future))
	}
	for i, row := range future {
		if err := checkRow(kind, schema, row); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

func checkRow(kind Kind, schema timeline.Schema, row timeline.CovariateRow) error {
	if !schema.Matches(row) {
		return fmt.Errorf("%s: %w: fitted with %v, got %v", kind, timeline.ErrShapeMismatch, schema, timeline.SchemaOf(row))
	}
	return nil
}

func checkSchema(kind Kind, schema timeline.Schema, rows []timeline.CovariateRow) error {
	for i, row := range rows {
		if !schema.Matches(row) {
			return fmt.Errorf("%s: %w: row %d has %v, expected %v", kind, timeline.ErrShapeMismatch, i, timeline.SchemaOf(row), schema)
		}
	}
	return nil
}
