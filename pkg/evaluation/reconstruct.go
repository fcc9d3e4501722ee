package evaluation

import (
	"fmt"
	"time"

	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// Anchor returns the last true log price before the horizon, i.e. the last training point
func Anchor(train timeline.Series) (float64, error) {
	if train.Len() == 0 {
		return 0, fmt.Errorf("%w: no training data to anchor on", timeline.ErrEmptyPartition)
	}
	return train.Last().LogPrice, nil
}

// Reconstruct turns diff-log forecasts into prices with a single cumulative pass from
// anchorLog and pairs them with the true test prices. Every strategy goes through here.
func Reconstruct(anchorLog float64, forecasts []timeline.ForecastResult, test timeline.Series) (timeline.ReconstructedSeries, error) {
	if len(forecasts) != test.Len() {
		return nil, fmt.Errorf("%w: %d forecasts for %d test points", timeline.ErrLengthMismatch, len(forecasts), test.Len())
	}

	diffs := make([]float64, len(forecasts))
	for i, f := range forecasts {
		actual := test.At(i)
		if !f.Date.Equal(actual.Date) {
			return nil, fmt.Errorf("%w: forecast %d is for %s, test point is %s", timeline.ErrLengthMismatch, i,
				f.Date.Format(time.DateOnly), actual.Date.Format(time.DateOnly))
		}
		diffs[i] = f.Value
	}

	prices := timeline.ReconstructToPrice(anchorLog, diffs)
	out := make(timeline.ReconstructedSeries, len(prices))
	for i, p := range prices {
		out[i] = timeline.ReconstructedPoint{
			Date:      forecasts[i].Date,
			Predicted: p,
			Actual:    test.At(i).Price,
		}
	}
	return out, nil
}
