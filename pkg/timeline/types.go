package timeline

import (
	"sort"
	"time"
)

// Observation is a single cleaned input row: a dated price plus its exogenous covariates
type Observation struct {
	Date       time.Time          `json:"date"`
	Price      float64            `json:"price"`
	Covariates map[string]float64 `json:"covariates,omitempty"`
}

// Point is an observation with its log-scale representation attached
type Point struct {
	Date         time.Time    `json:"date"`
	Price        float64      `json:"price"`
	LogPrice     float64      `json:"log_price"`
	DiffLogPrice float64      `json:"diff_log_price"`
	HasDiff      bool         `json:"has_diff"`
	Covariates   CovariateRow `json:"covariates,omitempty"`
}

// CovariateRow maps covariate name to value for one date
type CovariateRow map[string]float64

// Clone returns an independent copy of the row
func (r CovariateRow) Clone() CovariateRow {
	if r == nil {
		return nil
	}
	out := make(CovariateRow, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Schema is the sorted set of covariate names a model was fitted with
type Schema []string

// SchemaOf returns the schema of a covariate row
func SchemaOf(row CovariateRow) Schema {
	names := make([]string, 0, len(row))
	for k := range row {
		names = append(names, k)
	}
	sort.Strings(names)
	return Schema(names)
}

// Matches reports whether the row has exactly the fields of the schema
func (s Schema) Matches(row CovariateRow) bool {
	if len(row) != len(s) {
		return false
	}
	for _, name := range s {
		if _, ok := row[name]; !ok {
			return false
		}
	}
	return true
}

// Vector returns the row values in schema order
func (s Schema) Vector(row CovariateRow) []float64 {
	out := make([]float64, len(s))
	for i, name := range s {
		out[i] = row[name]
	}
	return out
}

// Prediction is a single difference-scale forecast with an optional interval
type Prediction struct {
	Value       float64 `json:"value"`
	Lower       float64 `json:"lower,omitempty"`
	Upper       float64 `json:"upper,omitempty"`
	HasInterval bool    `json:"has_interval,omitempty"`
}

// ForecastResult is a dated prediction produced by a forecaster run
type ForecastResult struct {
	Date time.Time `json:"date"`
	Prediction
}

// ReconstructedPoint pairs a price-scale prediction with the true price
type ReconstructedPoint struct {
	Date      time.Time `json:"date"`
	Predicted float64   `json:"predicted"`
	Actual    float64   `json:"actual"`
}

// ReconstructedSeries is the price-scale forecast over the test horizon
type ReconstructedSeries []ReconstructedPoint

// Predicted returns the predicted prices in order
func (s ReconstructedSeries) Predicted() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Predicted
	}
	return out
}

// Actual returns the true prices in order
func (s ReconstructedSeries) Actual() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Actual
	}
	return out
}

// AccuracyRecord holds the error metrics of one model on the test horizon
type AccuracyRecord struct {
	Model string  `json:"model"`
	RMSE  float64 `json:"rmse"`
	MAE   float64 `json:"mae"`
	MAPE  float64 `json:"mape"`
}
