package evaluation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// ErrNoRecords is returned when ranking an empty set of results
var ErrNoRecords = errors.New("no accuracy records to rank")

// Score computes the accuracy of a reconstructed series
func Score(model string, series timeline.ReconstructedSeries) (timeline.AccuracyRecord, error) {
	return ScoreSeries(model, series.Predicted(), series.Actual())
}

// ScoreSeries computes RMSE, MAE and MAPE (in percent) of predicted against actual prices
func ScoreSeries(model string, predicted, actual []float64) (timeline.AccuracyRecord, error) {
	if len(predicted) != len(actual) {
		return timeline.AccuracyRecord{}, fmt.Errorf("%w: %d predictions for %d actual values", timeline.ErrLengthMismatch, len(predicted), len(actual))
	}
	if len(actual) == 0 {
		return timeline.AccuracyRecord{}, fmt.Errorf("%w: nothing to score", timeline.ErrLengthMismatch)
	}

	n := float64(len(actual))
	errs := make([]float64, len(actual))
	floats.SubTo(errs, predicted, actual)

	var pct float64
	for i, a := range actual {
		if a == 0 {
			return timeline.AccuracyRecord{}, fmt.Errorf("%w: actual value %d is zero", timeline.ErrDomain, i)
		}
		pct += math.Abs(errs[i]) / math.Abs(a)
	}

	return timeline.AccuracyRecord{
		Model: model,
		RMSE:  floats.Norm(errs, 2) / math.Sqrt(n),
		MAE:   floats.Norm(errs, 1) / n,
		MAPE:  pct / n * 100,
	}, nil
}

// Leaderboard returns the records ordered by RMSE; equal scores keep their input order
func Leaderboard(records []timeline.AccuracyRecord) ([]timeline.AccuracyRecord, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	out := append([]timeline.AccuracyRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].RMSE, out[j].RMSE)
	})
	return out, nil
}

// Rank returns the name of the model with the lowest RMSE
func Rank(records []timeline.AccuracyRecord) (string, error) {
	board, err := Leaderboard(records)
	if err != nil {
		return "", err
	}
	return board[0].Model, nil
}

// less orders by value with NaN last
func less(a, b float64) bool {
	if math.IsNaN(b) {
		return !math.IsNaN(a)
	}
	return a < b
}
