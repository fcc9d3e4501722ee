package forecast

import (
	"context"

	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// Naive is the random walk on price: every future log difference is zero
type Naive struct{}

// NewNaive creates the random-walk baseline
func NewNaive() *Naive {
	return &Naive{}
}

func (n *Naive) Kind() Kind { return KindNaive }

func (n *Naive) Fit(ctx context.Context, history History) (HorizonModel, error) {
	if err := requireHistory(KindNaive, history, 1); err != nil {
		return nil, err
	}
	return &naiveModel{schema: history.Schema()}, nil
}

type naiveModel struct {
	schema timeline.Schema
}

func (m *naiveModel) Predict(ctx context.Context, h int, future []timeline.CovariateRow) ([]timeline.Prediction, error) {
	if err := checkHorizon(KindNaive, m.schema, h, future); err != nil {
		return nil, err
	}
	return make([]timeline.Prediction, h), nil
}
