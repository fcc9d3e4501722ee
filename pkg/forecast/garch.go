package forecast

import (
	"context"
	"fmt"
	"math"

	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

const (
	z95         = 1.959963984540054
	varianceMin = 1e-12
)

// GARCH is an AR mean with exogenous regressors and GARCH(1,1) conditional variance.
// The mean is fitted by least squares; the variance by Gaussian quasi-maximum likelihood
// with variance targeting, so omega = unconditional variance × (1 - a - b).
type GARCH struct {
	opts Options
}

// NewGARCH creates a volatility forecaster; Lags defaults to 1
func NewGARCH(opts Options) *GARCH {
	return &GARCH{opts: opts}
}

func (g *GARCH) Kind() Kind { return KindGARCH }

func (g *GARCH) Fit(ctx context.Context, history History) (StepModel, error) {
	lags := g.opts.lags(1)
	if err := requireHistory(KindGARCH, history, lags+3); err != nil {
		return nil, err
	}
	lin, err := fitLinear(ctx, KindGARCH, history, lags, true, g.opts.Param("ridge", defaultRidge))
	if err != nil {
		return nil, err
	}

	eps := lin.residuals
	var unconditional float64
	for _, e := range eps {
		unconditional += e * e
	}
	unconditional = math.Max(unconditional/float64(len(eps)), varianceMin)

	m := &garchModel{lin: lin, unconditional: unconditional}
	decode := func(x []float64) (a, b float64) {
		s := 0.999 * logistic(x[0])
		u := logistic(x[1])
		return s * u, s * (1 - u)
	}
	nll := func(x []float64) float64 {
		a, b := decode(x)
		trial := garchModel{unconditional: unconditional, alpha: a, beta: b}
		var sum float64
		variance := unconditional
		for _, e := range eps {
			sum += math.Log(variance) + e*e/variance
			variance = trial.next(variance, e)
		}
		return sum
	}

	x, err := minimize(ctx, KindGARCH, nll, []float64{2, -1.5}, int(g.opts.Param("max_iterations", defaultMaxIterations)))
	if err != nil {
		return nil, err
	}
	m.alpha, m.beta = decode(x)
	return m, nil
}

type garchModel struct {
	lin           *linearModel
	unconditional float64
	alpha         float64
	beta          float64
}

func (m *garchModel) omega() float64 {
	return m.unconditional * (1 - m.alpha - m.beta)
}

func (m *garchModel) next(variance, residual float64) float64 {
	return math.Max(m.omega()+m.alpha*residual*residual+m.beta*variance, varianceMin)
}

// PredictOne filters the conditional variance through the residuals of the supplied
// history and returns the mean with a 95% interval
func (m *garchModel) PredictOne(ctx context.Context, history History, next timeline.CovariateRow) (timeline.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return timeline.Prediction{}, err
	}

	mu, err := m.lin.mean(history.Values, next)
	if err != nil {
		return timeline.Prediction{}, err
	}
	residuals, err := m.lin.residualsOver(history)
	if err != nil {
		return timeline.Prediction{}, fmt.Errorf("%s: %w", KindGARCH, err)
	}

	variance := m.unconditional
	for _, e := range residuals {
		variance = m.next(variance, e)
	}
	half := z95 * math.Sqrt(variance)

	return timeline.Prediction{
		Value:       mu,
		Lower:       mu - half,
		Upper:       mu + half,
		HasInterval: true,
	}, nil
}
