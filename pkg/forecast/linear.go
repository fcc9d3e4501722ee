package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// standardizer rescales covariates with the training window's moments
type standardizer struct {
	schema timeline.Schema
	mean   []float64
	scale  []float64
}

func fitStandardizer(kind Kind, rows []timeline.CovariateRow) (standardizer, error) {
	s := standardizer{schema: timeline.Schema{}}
	if len(rows) == 0 {
		return s, nil
	}
	s.schema = timeline.SchemaOf(rows[0])
	if err := checkSchema(kind, s.schema, rows); err != nil {
		return standardizer{}, err
	}

	s.mean = make([]float64, len(s.schema))
	s.scale = make([]float64, len(s.schema))
	column := make([]float64, len(rows))
	for j, name := range s.schema {
		for i, row := range rows {
			column[i] = row[name]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.mean[j] = mean
		s.scale[j] = std
	}
	return s, nil
}

// apply returns the row rescaled; the row must match the fitted schema
func (s standardizer) apply(kind Kind, row timeline.CovariateRow) (timeline.CovariateRow, error) {
	if err := checkRow(kind, s.schema, row); err != nil {
		return nil, err
	}
	out := make(timeline.CovariateRow, len(s.schema))
	for j, name := range s.schema {
		out[name] = (row[name] - s.mean[j]) / s.scale[j]
	}
	return out, nil
}

func (s standardizer) applyAll(kind Kind, rows []timeline.CovariateRow) ([]timeline.CovariateRow, error) {
	out := make([]timeline.CovariateRow, len(rows))
	for i, row := range rows {
		scaled, err := s.apply(kind, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

// leastSquares solves min ||Xb - y||² + ridge·||b||² through a QR factorisation
// of the ridge-augmented design
func leastSquares(x [][]float64, y []float64, ridge float64) ([]float64, error) {
	n := len(x)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("%w: %d design rows for %d targets", timeline.ErrInsufficientData, n, len(y))
	}
	p := len(x[0])
	if p == 0 {
		return []float64{}, nil
	}
	if ridge <= 0 && n < p {
		return nil, fmt.Errorf("%w: %d rows cannot identify %d coefficients", timeline.ErrInsufficientData, n, p)
	}

	rows := n
	if ridge > 0 {
		rows += p
	}
	a := mat.NewDense(rows, p, nil)
	b := mat.NewVecDense(rows, nil)
	for i := range x {
		a.SetRow(i, x[i])
		b.SetVec(i, y[i])
	}
	if ridge > 0 {
		penalty := math.Sqrt(ridge)
		for j := 0; j < p; j++ {
			a.Set(n+j, j, penalty)
		}
	}

	var qr mat.QR
	qr.Factorize(a)

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("least squares: %w", err)
		}
	}

	out := make([]float64, p)
	for j := range out {
		out[j] = beta.AtVec(j)
		if math.IsNaN(out[j]) || math.IsInf(out[j], 0) {
			return nil, fmt.Errorf("%w: least squares produced a non-finite coefficient", timeline.ErrDomain)
		}
	}
	return out, nil
}

// linearModel is an autoregression on diff-log values with optional exogenous regressors
type linearModel struct {
	kind      Kind
	window    timeline.LagWindow
	std       standardizer
	exogenous bool
	beta      []float64
	residuals []float64
	sigma     float64
}

func fitLinear(ctx context.Context, kind Kind, h History, lags int, exogenous bool, ridge float64) (*linearModel, error) {
	if err := requireHistory(kind, h, lags+1); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := &linearModel{kind: kind, exogenous: exogenous}
	covs := make([]timeline.CovariateRow, h.Len())
	if exogenous {
		std, err := fitStandardizer(kind, h.Covariates)
		if err != nil {
			return nil, err
		}
		m.std = std
		if covs, err = std.applyAll(kind, h.Covariates); err != nil {
			return nil, err
		}
	}
	m.window = timeline.LagWindow{Lags: lags, Covariate: m.std.schema, Intercept: true}

	x, y, err := m.window.Design(h.Values, covs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	if m.beta, err = leastSquares(x, y, ridge); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}

	m.residuals = make([]float64, len(y))
	var sse float64
	for i := range y {
		m.residuals[i] = y[i] - floats.Dot(m.beta, x[i])
		sse += m.residuals[i] * m.residuals[i]
	}
	m.sigma = math.Sqrt(sse / float64(len(y)))
	return m, nil
}

// mean predicts the value that follows recent given the next covariates
func (m *linearModel) mean(recent []float64, next timeline.CovariateRow) (float64, error) {
	var scaled timeline.CovariateRow
	if m.exogenous {
		var err error
		if scaled, err = m.std.apply(m.kind, next); err != nil {
			return 0, err
		}
	}
	row, err := m.window.Row(recent, scaled)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", m.kind, err)
	}
	return floats.Dot(m.beta, row), nil
}

// residualsOver returns one-step residuals of the model over an arbitrary history
func (m *linearModel) residualsOver(h History) ([]float64, error) {
	var out []float64
	for t := m.window.Lags; t < h.Len(); t++ {
		mu, err := m.mean(h.Values[:t], h.Covariates[t])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", t, err)
		}
		out = append(out, h.Values[t]-mu)
	}
	return out, nil
}
