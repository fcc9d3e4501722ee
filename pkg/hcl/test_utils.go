package hcl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/leowmjw/go-temporal-forecast/pkg/experiment"
)

// AssertExperimentsEqual compares two Experiment objects for equality in tests
func AssertExperimentsEqual(t *testing.T, expected, actual *experiment.Experiment) {
	assert.Equal(t, expected.Name, actual.Name)
	assert.Equal(t, expected.SeriesID, actual.SeriesID)
	assert.Equal(t, expected.Frequency, actual.Frequency)
	assert.Equal(t, expected.Covariates, actual.Covariates)
	assert.Equal(t, expected.StepBudget, actual.StepBudget)

	// Compare times, allowing for potential timezone differences
	assert.Equal(t, expected.Cutoff.UTC().Format(time.RFC3339), actual.Cutoff.UTC().Format(time.RFC3339))

	assert.Equal(t, len(expected.Strategies), len(actual.Strategies))
	for i := 0; i < len(expected.Strategies) && i < len(actual.Strategies); i++ {
		AssertStrategiesEqual(t, &expected.Strategies[i], &actual.Strategies[i])
	}
}

// AssertStrategiesEqual compares two Strategy objects for equality in tests
func AssertStrategiesEqual(t *testing.T, expected, actual *experiment.Strategy) {
	assert.Equal(t, expected.Name, actual.Name)
	assert.Equal(t, expected.Kind, actual.Kind)
	assert.Equal(t, expected.Refit, actual.Refit)
	assert.Equal(t, expected.Lags, actual.Lags)
	if len(expected.Params) == 0 && len(actual.Params) == 0 {
		return
	}
	assert.Equal(t, expected.Params, actual.Params)
}
