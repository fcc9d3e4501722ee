package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leowmjw/go-temporal-forecast/pkg/experiment"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

func TestSplitRecords(t *testing.T) {
	array, err := splitRecords([]byte(`[{"date":"2024-01-01","price":1}, {"date":"2024-02-01","price":2}]`))
	require.NoError(t, err)
	assert.Len(t, array, 2)

	lines, err := splitRecords([]byte("{\"date\":\"2024-01-01\",\"price\":1}\n\n{\"date\":\"2024-02-01\",\"price\":2}\n"))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, `{"date":"2024-02-01","price":2}`, string(lines[1]))

	_, err = splitRecords([]byte(`[{"date":`))
	assert.Error(t, err)
}

func TestLoadObservations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cocoa.jsonl")
	content := "{\"date\":\"2024-01-01\",\"close\":4100,\"prcp\":90}\n{\"date\":\"2024-02-01\",\"close\":4200,\"prcp\":70}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	obs, err := loadObservations(path)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, 4200.0, obs[1].Price)
	assert.Equal(t, 70.0, obs[1].Covariates["rainfall"])
}

func TestLoadExperiment(t *testing.T) {
	fromHCL, err := loadExperiment("../../pkg/hcl/testdata/cocoa.hcl")
	require.NoError(t, err)

	fromJSON, err := loadExperiment("../../pkg/hcl/testdata/cocoa.json")
	require.NoError(t, err)

	assert.Equal(t, fromJSON.Name, fromHCL.Name)
	assert.Equal(t, len(fromJSON.Strategies), len(fromHCL.Strategies))
}

func TestDisplayReport(t *testing.T) {
	step := 3
	report := &experiment.Report{
		ID:         "run-1",
		Experiment: "cocoa-2024",
		Cutoff:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		TrainSize:  40,
		TestSize:   8,
		Results: []experiment.StrategyResult{
			{Strategy: "ets", Accuracy: &timeline.AccuracyRecord{Model: "ets", RMSE: 10, MAE: 8, MAPE: 1.5}},
			{Strategy: "garch", Error: "step 3: insufficient data", FailedStep: &step},
		},
		Leaderboard: []timeline.AccuracyRecord{{Model: "ets", RMSE: 10, MAE: 8, MAPE: 1.5}},
		Best:        "ets",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var text bytes.Buffer
	displayReport(&text, report, false, logger)
	assert.Contains(t, text.String(), "1. ets")
	assert.Contains(t, text.String(), "failed: garch at step 3")
	assert.Contains(t, text.String(), "Best model: ets")

	var js bytes.Buffer
	displayReport(&js, report, true, logger)
	assert.Contains(t, js.String(), `"best": "ets"`)
}
