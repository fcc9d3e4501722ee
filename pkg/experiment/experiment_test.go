package experiment

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/leowmjw/go-temporal-forecast/pkg/engine"
	"github.com/leowmjw/go-temporal-forecast/pkg/forecast"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

var jan2020 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func cocoaObservations(n int) []timeline.Observation {
	rng := rand.New(rand.NewSource(7))
	obs := make([]timeline.Observation, n)
	price := 2500.0
	for i := range obs {
		rain := 100 + 40*math.Sin(float64(i)*math.Pi/6) + 5*rng.NormFloat64()
		temp := 26 + 2*math.Cos(float64(i)*math.Pi/6)
		fx := 5 + 0.05*float64(i)
		price *= math.Exp(0.004 - 0.0004*(rain-100) + 0.03*rng.NormFloat64())
		obs[i] = timeline.Observation{
			Date:  jan2020.AddDate(0, i, 0),
			Price: price,
			Covariates: map[string]float64{
				"rainfall":      rain,
				"temperature":   temp,
				"exchange_rate": fx,
			},
		}
	}
	return obs
}

func cocoaExperiment() Experiment {
	return Experiment{
		Name:       "cocoa-test",
		SeriesID:   "cocoa",
		Cutoff:     jan2020.AddDate(0, 40, 0),
		Frequency:  timeline.Monthly,
		Covariates: []string{"rainfall", "temperature", "exchange_rate"},
		StepBudget: 10 * time.Second,
		Strategies: []Strategy{
			{Name: "naive", Kind: forecast.KindNaive},
			{Name: "ets", Kind: forecast.KindETS},
			{Name: "arimax", Kind: forecast.KindARIMAX, Lags: 1},
			{Name: "regression", Kind: forecast.KindRegression, Lags: 2},
			{Name: "garch", Kind: forecast.KindGARCH},
			{Name: "sequence", Kind: forecast.KindSequence, Params: map[string]float64{"epochs": 40}},
		},
	}
}

type RunnerTestSuite struct {
	suite.Suite
	registry *forecast.Registry
	logger   *slog.Logger
}

func (s *RunnerTestSuite) SetupTest() {
	s.registry = forecast.DefaultRegistry()
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func (s *RunnerTestSuite) TestRunAllStrategies() {
	exp := cocoaExperiment()
	report, err := NewRunner(s.registry, s.logger, 2).Run(context.Background(), cocoaObservations(48), exp)
	s.Require().NoError(err)

	s.NotEmpty(report.ID)
	s.Equal(40, report.TrainSize)
	s.Equal(8, report.TestSize)
	s.Equal(39, report.TrainSummary.Count)
	s.Len(report.Results, len(exp.Strategies))

	for i, res := range report.Results {
		s.Equal(exp.Strategies[i].Name, res.Strategy)
		s.True(res.Succeeded(), "%s: %s", res.Strategy, res.Error)
		s.Len(res.Series, 8)
	}
	s.Len(report.Leaderboard, len(exp.Strategies))
	s.Equal(report.Leaderboard[0].Model, report.Best)

	s.Equal(ModeFixed, report.Results[0].Mode)
	s.Equal(ModeStepwise, report.Results[3].Mode)
	s.Equal(engine.RefitPerStep, report.Results[3].Refit)
	s.Equal(engine.RefitOnce, report.Results[5].Refit)
}

func (s *RunnerTestSuite) TestFailedStrategyDoesNotAffectOthers() {
	exp := cocoaExperiment()
	exp.Strategies = []Strategy{
		{Name: "naive", Kind: forecast.KindNaive},
		{Name: "too-many-lags", Kind: forecast.KindRegression, Lags: 60},
	}

	report, err := NewRunner(s.registry, s.logger, 0).Run(context.Background(), cocoaObservations(48), exp)
	s.Require().NoError(err)

	s.True(report.Results[0].Succeeded())
	failed := report.Results[1]
	s.False(failed.Succeeded())
	s.Contains(failed.Error, "insufficient data")
	s.Require().NotNil(failed.FailedStep)
	s.Equal(0, *failed.FailedStep)
	s.Nil(failed.Series)

	s.Equal("naive", report.Best)
	s.Len(report.Leaderboard, 1)
}

func (s *RunnerTestSuite) TestStructuralErrorsAbort() {
	exp := cocoaExperiment()
	exp.Cutoff = jan2020.AddDate(10, 0, 0)

	_, err := NewRunner(s.registry, s.logger, 0).Run(context.Background(), cocoaObservations(48), exp)
	s.ErrorIs(err, timeline.ErrEmptyPartition)

	obs := cocoaObservations(48)
	delete(obs[10].Covariates, "rainfall")
	_, err = NewRunner(s.registry, s.logger, 0).Run(context.Background(), obs, cocoaExperiment())
	s.ErrorIs(err, timeline.ErrInsufficientData)
}

func (s *RunnerTestSuite) TestRunStrategyDeterministic() {
	exp := cocoaExperiment()
	series, err := timeline.NewSeries(cocoaObservations(48), exp.Frequency, exp.Covariates)
	s.Require().NoError(err)

	strategy := Strategy{Name: "regression", Kind: forecast.KindRegression, Refit: engine.RefitPerStep}
	first := RunStrategy(context.Background(), s.logger, s.registry, series, exp, strategy, nil)
	second := RunStrategy(context.Background(), s.logger, s.registry, series, exp, strategy, nil)

	s.Require().True(first.Succeeded(), first.Error)
	s.Equal(first.Series, second.Series)
	s.Equal(*first.Accuracy, *second.Accuracy)
}

func TestRunnerTestSuite(t *testing.T) {
	suite.Run(t, new(RunnerTestSuite))
}

func TestValidate(t *testing.T) {
	registry := forecast.DefaultRegistry()

	require.NoError(t, cocoaExperiment().Validate(registry))

	tests := []struct {
		name   string
		mutate func(*Experiment)
	}{
		{"missing name", func(e *Experiment) { e.Name = "" }},
		{"missing cutoff", func(e *Experiment) { e.Cutoff = time.Time{} }},
		{"no strategies", func(e *Experiment) { e.Strategies = nil }},
		{"duplicate strategy", func(e *Experiment) { e.Strategies = append(e.Strategies, e.Strategies[0]) }},
		{"unknown kind", func(e *Experiment) { e.Strategies[0].Kind = "prophet" }},
		{"bad refit", func(e *Experiment) { e.Strategies[3].Refit = "sometimes" }},
		{"bad frequency", func(e *Experiment) { e.Frequency = "hourly" }},
		{"duplicate covariate", func(e *Experiment) { e.Covariates = append(e.Covariates, "rainfall") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := cocoaExperiment()
			tt.mutate(&exp)
			assert.ErrorIs(t, exp.Validate(registry), ErrInvalidExperiment)
		})
	}
}

func TestReportRankWithoutSuccess(t *testing.T) {
	report := &Report{Results: []StrategyResult{{Strategy: "x", Error: "boom"}}}
	assert.Error(t, report.Rank())
	assert.Empty(t, report.Best)
}

func TestExperimentUnmarshalJSON(t *testing.T) {
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		body   string
		budget time.Duration
	}{
		{"calendar date and duration string", `{"name": "x", "cutoff": "2024-01-01", "step_budget": "30s"}`, 30 * time.Second},
		{"rfc3339 and nanoseconds", `{"name": "x", "cutoff": "2024-01-01T00:00:00Z", "step_budget": 30000000000}`, 30 * time.Second},
		{"no budget", `{"name": "x", "cutoff": "2024-01-01"}`, 0},
		{"null budget", `{"name": "x", "cutoff": "2024-01-01", "step_budget": null}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var exp Experiment
			require.NoError(t, json.Unmarshal([]byte(tt.body), &exp))
			assert.Equal(t, "x", exp.Name)
			assert.True(t, exp.Cutoff.Equal(cutoff), "got cutoff %s", exp.Cutoff)
			assert.Equal(t, tt.budget, exp.StepBudget)
		})
	}

	t.Run("round trip", func(t *testing.T) {
		exp := cocoaExperiment()
		exp.StepBudget = 2 * time.Second
		data, err := json.Marshal(exp)
		require.NoError(t, err)

		var decoded Experiment
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.True(t, decoded.Cutoff.Equal(exp.Cutoff))
		assert.Equal(t, exp.StepBudget, decoded.StepBudget)
		assert.Equal(t, exp.Strategies, decoded.Strategies)
		assert.Equal(t, exp.Covariates, decoded.Covariates)
	})

	for _, body := range []string{
		`{"name": "x", "cutoff": "01/02/2024"}`,
		`{"name": "x", "cutoff": "2024-01-01", "step_budget": "soon"}`,
		`{"name": "x", "cutoff": 20240101}`,
	} {
		var exp Experiment
		assert.Error(t, json.Unmarshal([]byte(body), &exp), body)
	}
}
