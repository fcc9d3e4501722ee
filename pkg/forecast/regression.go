package forecast

import (
	"context"

	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// Regression is a lagged linear regression on the p most recent diff-log values
// and the covariates of the target date. It is used one step at a time.
type Regression struct {
	opts Options
}

// NewRegression creates a recursive regression forecaster; Lags defaults to 2
func NewRegression(opts Options) *Regression {
	return &Regression{opts: opts}
}

func (r *Regression) Kind() Kind { return KindRegression }

func (r *Regression) Fit(ctx context.Context, history History) (StepModel, error) {
	lin, err := fitLinear(ctx, KindRegression, history, r.opts.lags(2), true, r.opts.Param("ridge", defaultRidge))
	if err != nil {
		return nil, err
	}
	return &regressionModel{lin: lin}, nil
}

type regressionModel struct {
	lin *linearModel
}

func (m *regressionModel) PredictOne(ctx context.Context, history History, next timeline.CovariateRow) (timeline.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return timeline.Prediction{}, err
	}
	v, err := m.lin.mean(history.Values, next)
	if err != nil {
		return timeline.Prediction{}, err
	}
	return timeline.Prediction{Value: v}, nil
}
