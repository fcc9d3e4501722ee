package hcl

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leowmjw/go-temporal-forecast/pkg/engine"
	"github.com/leowmjw/go-temporal-forecast/pkg/forecast"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

func TestParseExperiment(t *testing.T) {
	hclContent := `
	# Experiment configuration
	name      = "cocoa-2024"
	series_id = "cocoa"
	cutoff    = "2024-01-01"
	frequency = "monthly"

	covariates  = ["rainfall", "temperature"]
	step_budget = "45s"

	# Volatility model refitted every step
	strategy "garch" {
		kind  = "garch"
		refit = "per_step"
		params = {
			max_iterations = 300
		}
	}

	# Recursive regression with three lags
	strategy "regression" {
		kind = "regression"
		lags = 3
	}
	`

	exp, err := ParseExperiment(hclContent)
	require.NoError(t, err)
	require.NotNil(t, exp)

	assert.Equal(t, "cocoa-2024", exp.Name)
	assert.Equal(t, "cocoa", exp.SeriesID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), exp.Cutoff)
	assert.Equal(t, timeline.Monthly, exp.Frequency)
	assert.Equal(t, []string{"rainfall", "temperature"}, exp.Covariates)
	assert.Equal(t, 45*time.Second, exp.StepBudget)

	require.Len(t, exp.Strategies, 2)

	assert.Equal(t, "garch", exp.Strategies[0].Name)
	assert.Equal(t, forecast.KindGARCH, exp.Strategies[0].Kind)
	assert.Equal(t, engine.RefitPerStep, exp.Strategies[0].Refit)
	assert.Equal(t, 300.0, exp.Strategies[0].Params["max_iterations"])

	assert.Equal(t, forecast.KindRegression, exp.Strategies[1].Kind)
	assert.Equal(t, 3, exp.Strategies[1].Lags)
	assert.Empty(t, exp.Strategies[1].Refit)

	require.NoError(t, exp.Validate(forecast.DefaultRegistry()))
}

func TestParseExperimentErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{
			name:    "syntax error",
			content: `name = "x`,
			errText: "failed to parse HCL",
		},
		{
			name:    "missing cutoff",
			content: `name = "x"`,
			errText: "failed to decode HCL body",
		},
		{
			name:    "bad cutoff",
			content: `name = "x"` + "\n" + `cutoff = "01/02/2024"`,
			errText: "failed to parse cutoff",
		},
		{
			name:    "bad date function argument",
			content: `name = "x"` + "\n" + `cutoff = date("tomorrow")`,
			errText: "failed to decode HCL body",
		},
		{
			name:    "bad refit",
			content: `name = "x"` + "\n" + `cutoff = "2024-01-01"` + "\n" + `strategy "a" {` + "\n" + `kind = "garch"` + "\n" + `refit = "never"` + "\n" + `}`,
			errText: "unknown refit policy",
		},
		{
			name:    "non-numeric param",
			content: `name = "x"` + "\n" + `cutoff = "2024-01-01"` + "\n" + `strategy "a" {` + "\n" + `kind = "ets"` + "\n" + `params = { alpha = "high" }` + "\n" + `}`,
			errText: "must be a number",
		},
		{
			name:    "unknown attribute",
			content: `name = "x"` + "\n" + `cutoff = "2024-01-01"` + "\n" + `horizon = 12`,
			errText: "failed to decode HCL body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExperiment(tt.content)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestIsHCL(t *testing.T) {
	assert.True(t, IsHCL([]byte(`name = "x"`)))
	assert.True(t, IsHCL([]byte("strategy \"a\" {\n kind = \"ets\"\n}")))
	assert.False(t, IsHCL([]byte(`name = `)))
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		expected    string
	}{
		{"explicit hcl", ContentTypeHCL, `name = "x"`, ContentTypeHCL},
		{"hcl alias", "text/x-hcl; charset=utf-8", `name = "x"`, ContentTypeHCL},
		{"explicit json", "application/json", `{"name": "x"}`, ContentTypeJSON},
		{"sniffed json", "", `  {"name": "x"}`, ContentTypeJSON},
		{"sniffed hcl", "text/plain", `name = "x"`, ContentTypeHCL},
		{"empty body", "", ``, ContentTypeJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, "/series/cocoa/evaluate", strings.NewReader(tt.body))
			require.NoError(t, err)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			got, err := DetectContentType(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
