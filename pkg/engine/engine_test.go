package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leowmjw/go-temporal-forecast/pkg/forecast"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

var jan2020 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func buildSeries(t *testing.T, n int) timeline.Series {
	t.Helper()
	obs := make([]timeline.Observation, n)
	price := 100.0
	for i := range obs {
		price *= 1 + 0.03*math.Sin(float64(i)) + 0.002*float64(i%4)
		obs[i] = timeline.Observation{
			Date:       jan2020.AddDate(0, i, 0),
			Price:      price,
			Covariates: map[string]float64{"rainfall": 80 + 10*math.Cos(float64(i))},
		}
	}
	series, err := timeline.NewSeries(obs, timeline.Monthly, []string{"rainfall"})
	require.NoError(t, err)
	return series
}

func splitAt(t *testing.T, series timeline.Series, trainLen int) (timeline.Series, timeline.Series) {
	t.Helper()
	train, test, err := timeline.Split(series, series.At(trainLen).Date)
	require.NoError(t, err)
	return train, test
}

// constantForecaster predicts a fixed value and counts fits
type constantForecaster struct {
	value float64
	delay time.Duration
	fits  int
}

func (c *constantForecaster) Kind() forecast.Kind { return "constant" }

func (c *constantForecaster) Fit(ctx context.Context, history forecast.History) (forecast.StepModel, error) {
	c.fits++
	return c, nil
}

func (c *constantForecaster) PredictOne(ctx context.Context, history forecast.History, next timeline.CovariateRow) (timeline.Prediction, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return timeline.Prediction{Value: c.value}, nil
}

func TestRunStepwiseLeakFree(t *testing.T) {
	series := buildSeries(t, 30)
	train, test := splitAt(t, series, 24)

	var observed int
	eng := New(Config{
		Refit: RefitPerStep,
		Observer: func(step int, date time.Time, view forecast.History) {
			observed++
			for _, d := range view.Dates {
				assert.True(t, d.Before(date), "step %d sees %s", step, d.Format(time.DateOnly))
			}
			// entries at or after the cutoff must be the engine's own predictions
			for j, d := range view.Dates {
				if !d.Before(test.First().Date) {
					assert.Equal(t, 0.123, view.Values[j])
				}
			}
		},
	})

	results, err := eng.RunStepwise(context.Background(), &constantForecaster{value: 0.123}, train, test)
	require.NoError(t, err)
	assert.Equal(t, test.Len(), observed)
	assert.Equal(t, Done, eng.State())

	require.Len(t, results, test.Len())
	for i, r := range results {
		assert.True(t, r.Date.Equal(test.At(i).Date))
	}
}

func TestRunStepwiseRefitPolicy(t *testing.T) {
	series := buildSeries(t, 20)
	train, test := splitAt(t, series, 15)

	perStep := &constantForecaster{}
	_, err := New(Config{Refit: RefitPerStep}).RunStepwise(context.Background(), perStep, train, test)
	require.NoError(t, err)
	assert.Equal(t, test.Len(), perStep.fits)

	once := &constantForecaster{}
	_, err = New(Config{Refit: RefitOnce}).RunStepwise(context.Background(), once, train, test)
	require.NoError(t, err)
	assert.Equal(t, 1, once.fits)
}

func TestRunStepwiseDeterministic(t *testing.T) {
	series := buildSeries(t, 36)
	train, test := splitAt(t, series, 28)

	run := func() []timeline.ForecastResult {
		results, err := New(Config{Refit: RefitPerStep}).RunStepwise(context.Background(), forecast.NewRegression(forecast.Options{}), train, test)
		require.NoError(t, err)
		return results
	}
	assert.Equal(t, run(), run())
}

func TestRunStepwiseInsufficientData(t *testing.T) {
	series := buildSeries(t, 6)
	train, test := splitAt(t, series, 1)

	observed := false
	eng := New(Config{
		Refit:    RefitPerStep,
		Observer: func(int, time.Time, forecast.History) { observed = true },
	})
	results, err := eng.RunStepwise(context.Background(), forecast.NewRegression(forecast.Options{Lags: 2}), train, test)

	require.Error(t, err)
	assert.Nil(t, results)
	assert.False(t, observed, "no prediction may be attempted")
	assert.ErrorIs(t, err, timeline.ErrInsufficientData)

	var failure *StepFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 0, failure.Step)
	assert.Equal(t, Failed, eng.State())
}

func TestRunStepwiseBudgetExceeded(t *testing.T) {
	series := buildSeries(t, 10)
	train, test := splitAt(t, series, 8)

	slow := &constantForecaster{delay: 30 * time.Millisecond}
	results, err := New(Config{StepBudget: 5 * time.Millisecond}).RunStepwise(context.Background(), slow, train, test)

	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrStepBudgetExceeded)
}

func TestRunStepwiseNonFinite(t *testing.T) {
	series := buildSeries(t, 10)
	train, test := splitAt(t, series, 8)

	_, err := New(Config{}).RunStepwise(context.Background(), &constantForecaster{value: math.Inf(1)}, train, test)
	assert.ErrorIs(t, err, timeline.ErrDomain)
}

func TestRunStepwiseCancelled(t *testing.T) {
	series := buildSeries(t, 10)
	train, test := splitAt(t, series, 8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).RunStepwise(ctx, &constantForecaster{}, train, test)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunFixed(t *testing.T) {
	series := buildSeries(t, 24)
	train, test := splitAt(t, series, 18)

	var views []forecast.History
	eng := New(Config{Observer: func(step int, date time.Time, view forecast.History) {
		views = append(views, view)
	}})
	results, err := eng.RunFixed(context.Background(), forecast.NewNaive(), train, test)
	require.NoError(t, err)
	require.Len(t, results, test.Len())
	for i, r := range results {
		assert.Equal(t, 0.0, r.Value)
		assert.True(t, r.Date.Equal(test.At(i).Date))
	}

	require.Len(t, views, 1)
	assert.Equal(t, train.Len()-1, views[0].Len())
	for _, d := range views[0].Dates {
		assert.True(t, d.Before(test.First().Date))
	}
}

func TestRunFixedSchemaDrift(t *testing.T) {
	series := buildSeries(t, 24)
	train, _ := splitAt(t, series, 18)

	obs := series.Observations()[18:]
	for i := range obs {
		obs[i].Covariates = map[string]float64{"temperature": 25}
	}
	test, err := timeline.NewSeries(obs, timeline.Monthly, []string{"temperature"})
	require.NoError(t, err)

	_, err = New(Config{}).RunFixed(context.Background(), forecast.NewARIMA(forecast.Options{}, true), train, test)
	assert.ErrorIs(t, err, timeline.ErrShapeMismatch)
}

func TestRollingHistoryAppend(t *testing.T) {
	series := buildSeries(t, 5)
	h := NewRollingHistory(series)
	require.Equal(t, 4, h.Len())

	err := h.Append(series.Last().Date, 0.1, timeline.CovariateRow{"rainfall": 1})
	assert.ErrorIs(t, err, timeline.ErrNotOrdered)

	next := series.Last().Date.AddDate(0, 1, 0)
	require.NoError(t, h.Append(next, 0.1, timeline.CovariateRow{"rainfall": 1}))
	assert.True(t, h.Predicted(4))
	assert.False(t, h.Predicted(0))

	view := h.View()
	view.Values[0] = 42
	assert.NotEqual(t, 42.0, h.View().Values[0])
}

func TestParseRefitPolicy(t *testing.T) {
	p, err := ParseRefitPolicy("per_step")
	require.NoError(t, err)
	assert.Equal(t, RefitPerStep, p)

	_, err = ParseRefitPolicy("sometimes")
	assert.Error(t, err)
}
