package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

const defaultMaxIterations = 400

// ETS is simple exponential smoothing on diff-log values.
// The smoothing weight is estimated by minimising the one-step squared error
// unless an "alpha" parameter fixes it.
type ETS struct {
	opts Options
}

// NewETS creates a simple exponential smoothing forecaster
func NewETS(opts Options) *ETS {
	return &ETS{opts: opts}
}

func (e *ETS) Kind() Kind { return KindETS }

func (e *ETS) Fit(ctx context.Context, history History) (HorizonModel, error) {
	if err := requireHistory(KindETS, history, 2); err != nil {
		return nil, err
	}

	y := history.Values
	sse := func(alpha float64) float64 {
		level := y[0]
		var s float64
		for t := 1; t < len(y); t++ {
			e := y[t] - level
			s += e * e
			level = alpha*y[t] + (1-alpha)*level
		}
		return s
	}

	alpha := e.opts.Param("alpha", math.NaN())
	if math.IsNaN(alpha) {
		x, err := minimize(ctx, KindETS, func(x []float64) float64 {
			return sse(logistic(x[0]))
		}, []float64{0}, int(e.opts.Param("max_iterations", defaultMaxIterations)))
		if err != nil {
			return nil, err
		}
		alpha = logistic(x[0])
	}
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("%s: %w: alpha %v outside (0, 1]", KindETS, timeline.ErrDomain, alpha)
	}

	level := y[0]
	for t := 1; t < len(y); t++ {
		level = alpha*y[t] + (1-alpha)*level
	}

	return &smoothingModel{
		kind:   KindETS,
		schema: history.Schema(),
		level:  level,
		phi:    1,
		Alpha:  alpha,
	}, nil
}

// Holt is additive-trend exponential smoothing with an optional damping factor.
// Alpha, beta and phi are estimated jointly unless fixed by parameters of the same name.
type Holt struct {
	opts Options
}

// NewHolt creates a damped-trend Holt forecaster
func NewHolt(opts Options) *Holt {
	return &Holt{opts: opts}
}

func (m *Holt) Kind() Kind { return KindHolt }

func (m *Holt) Fit(ctx context.Context, history History) (HorizonModel, error) {
	if err := requireHistory(KindHolt, history, 3); err != nil {
		return nil, err
	}
	y := history.Values

	run := func(alpha, beta, phi float64) (level, trend, sse float64) {
		level = y[0]
		trend = y[1] - y[0]
		for t := 1; t < len(y); t++ {
			fc := level + phi*trend
			e := y[t] - fc
			sse += e * e
			prev := level
			level = alpha*y[t] + (1-alpha)*(prev+phi*trend)
			trend = beta*(level-prev) + (1-beta)*phi*trend
		}
		return level, trend, sse
	}

	fixedAlpha := m.opts.Param("alpha", math.NaN())
	fixedBeta := m.opts.Param("beta", math.NaN())
	fixedPhi := m.opts.Param("phi", math.NaN())

	// phi is kept in [0.8, 1) when estimated
	decode := func(x []float64) (alpha, beta, phi float64) {
		alpha, beta, phi = fixedAlpha, fixedBeta, fixedPhi
		if math.IsNaN(alpha) {
			alpha = logistic(x[0])
		}
		if math.IsNaN(beta) {
			beta = logistic(x[1])
		}
		if math.IsNaN(phi) {
			phi = 0.8 + 0.2*logistic(x[2])
		}
		return alpha, beta, phi
	}

	x := []float64{0, -2, 2}
	if math.IsNaN(fixedAlpha) || math.IsNaN(fixedBeta) || math.IsNaN(fixedPhi) {
		var err error
		x, err = minimize(ctx, KindHolt, func(x []float64) float64 {
			_, _, sse := run(decode(x))
			return sse
		}, x, int(m.opts.Param("max_iterations", defaultMaxIterations)))
		if err != nil {
			return nil, err
		}
	}

	alpha, beta, phi := decode(x)
	if alpha <= 0 || alpha > 1 || beta < 0 || beta > 1 || phi <= 0 || phi > 1 {
		return nil, fmt.Errorf("%s: %w: parameters alpha=%v beta=%v phi=%v out of range", KindHolt, timeline.ErrDomain, alpha, beta, phi)
	}
	level, trend, _ := run(alpha, beta, phi)

	return &smoothingModel{
		kind:   KindHolt,
		schema: history.Schema(),
		level:  level,
		trend:  trend,
		phi:    phi,
		Alpha:  alpha,
		Beta:   beta,
	}, nil
}

// smoothingModel forecasts level + (phi + ... + phi^h)·trend
type smoothingModel struct {
	kind   Kind
	schema timeline.Schema
	level  float64
	trend  float64
	phi    float64

	Alpha float64
	Beta  float64
}

func (m *smoothingModel) Predict(ctx context.Context, h int, future []timeline.CovariateRow) ([]timeline.Prediction, error) {
	if err := checkHorizon(m.kind, m.schema, h, future); err != nil {
		return nil, err
	}

	out := make([]timeline.Prediction, h)
	var damp, pow float64
	pow = 1
	for i := range out {
		pow *= m.phi
		damp += pow
		out[i] = timeline.Prediction{Value: m.level + damp*m.trend}
	}
	return out, nil
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// minimize runs Nelder-Mead on an unconstrained objective
func minimize(ctx context.Context, kind Kind, f func([]float64) float64, init []float64, maxIterations int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			v := f(x)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return math.MaxFloat64
			}
			return v
		},
	}
	settings := &optimize.Settings{MajorIterations: maxIterations}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			settings.Runtime = remaining
		}
	}

	result, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
	if result == nil {
		return nil, fmt.Errorf("%s: estimation failed: %w", kind, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s: %w: estimation diverged", kind, timeline.ErrDomain)
		}
	}
	return result.X, nil
}
