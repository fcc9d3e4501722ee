package timeline

import (
	"fmt"
)

// LagWindow describes the lag features built for one target value
type LagWindow struct {
	Lags      int    `json:"lags"`
	Covariate Schema `json:"covariates,omitempty"`
	Intercept bool   `json:"intercept"`
}

// Width returns the number of columns one design row has
func (w LagWindow) Width() int {
	width := w.Lags + len(w.Covariate)
	if w.Intercept {
		width++
	}
	return width
}

// MinHistory returns the smallest history that yields at least one training row
func (w LagWindow) MinHistory() int {
	return w.Lags + 1
}

// Row builds a single design row from the most recent values and the target's covariates.
// recent must hold at least Lags values; the newest value is last.
func (w LagWindow) Row(recent []float64, covariates CovariateRow) ([]float64, error) {
	if len(recent) < w.Lags {
		return nil, fmt.Errorf("%w: lag window needs %d values, have %d", ErrInsufficientData, w.Lags, len(recent))
	}
	if !w.Covariate.Matches(covariates) {
		return nil, fmt.Errorf("%w: expected covariates %v, got %v", ErrShapeMismatch, w.Covariate, SchemaOf(covariates))
	}

	row := make([]float64, 0, w.Width())
	if w.Intercept {
		row = append(row, 1)
	}
	// lag 1 first
	for k := 1; k <= w.Lags; k++ {
		row = append(row, recent[len(recent)-k])
	}
	row = append(row, w.Covariate.Vector(covariates)...)
	return row, nil
}

// Design builds the training design matrix and targets from a value history and
// aligned covariate rows. Row t regresses values[t] on values[t-1..t-Lags] and covariates[t].
func (w LagWindow) Design(values []float64, covariates []CovariateRow) (x [][]float64, y []float64, err error) {
	if len(values) != len(covariates) {
		return nil, nil, fmt.Errorf("%w: %d values but %d covariate rows", ErrLengthMismatch, len(values), len(covariates))
	}
	if len(values) < w.MinHistory() {
		return nil, nil, fmt.Errorf("%w: lag window of %d needs at least %d values, have %d", ErrInsufficientData, w.Lags, w.MinHistory(), len(values))
	}

	for t := w.Lags; t < len(values); t++ {
		row, err := w.Row(values[:t], covariates[t])
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", t, err)
		}
		x = append(x, row)
		y = append(y, values[t])
	}
	return x, y, nil
}
