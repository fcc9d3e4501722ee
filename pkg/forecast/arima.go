package forecast

import (
	"context"
	"fmt"

	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

const defaultRidge = 1e-8

// ARIMA is an AR(p) model on diff-log values, i.e. ARIMA(p,1,0) on log price.
// With exogenous regressors enabled it becomes a regression with AR dynamics
// whose horizon forecast feeds on its own predictions and the known future covariates.
type ARIMA struct {
	opts      Options
	exogenous bool
}

// NewARIMA creates an AR forecaster; exogenous selects the ARIMAX variant
func NewARIMA(opts Options, exogenous bool) *ARIMA {
	return &ARIMA{opts: opts, exogenous: exogenous}
}

func (a *ARIMA) Kind() Kind {
	if a.exogenous {
		return KindARIMAX
	}
	return KindARIMA
}

func (a *ARIMA) Fit(ctx context.Context, history History) (HorizonModel, error) {
	lags := a.opts.lags(1)
	lin, err := fitLinear(ctx, a.Kind(), history, lags, a.exogenous, a.opts.Param("ridge", defaultRidge))
	if err != nil {
		return nil, err
	}

	tail := history.Values[history.Len()-lags:]
	return &arimaModel{
		lin:    lin,
		schema: history.Schema(),
		recent: append([]float64(nil), tail...),
	}, nil
}

type arimaModel struct {
	lin    *linearModel
	schema timeline.Schema
	recent []float64
}

func (m *arimaModel) Predict(ctx context.Context, h int, future []timeline.CovariateRow) ([]timeline.Prediction, error) {
	if err := checkHorizon(m.lin.kind, m.schema, h, future); err != nil {
		return nil, err
	}

	recent := append([]float64(nil), m.recent...)
	out := make([]timeline.Prediction, h)
	for i := 0; i < h; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := m.lin.mean(recent, future[i])
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		out[i] = timeline.Prediction{Value: v}
		recent = append(recent, v)
	}
	return out, nil
}
