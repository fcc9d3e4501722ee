package hcl

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/leowmjw/go-temporal-forecast/pkg/engine"
	"github.com/leowmjw/go-temporal-forecast/pkg/experiment"
	"github.com/leowmjw/go-temporal-forecast/pkg/forecast"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// HCLExperiment represents the HCL experiment structure
type HCLExperiment struct {
	Name       string        `hcl:"name"`
	SeriesID   *string       `hcl:"series_id,optional"`
	Cutoff     string        `hcl:"cutoff"`
	Frequency  *string       `hcl:"frequency,optional"`
	Covariates []string      `hcl:"covariates,optional"`
	StepBudget *string       `hcl:"step_budget,optional"`
	Strategies []HCLStrategy `hcl:"strategy,block"`
}

// HCLStrategy represents one strategy block; the label is the strategy name
type HCLStrategy struct {
	Name   string         `hcl:"name,label"`
	Kind   string         `hcl:"kind"`
	Refit  *string        `hcl:"refit,optional"`
	Lags   *int           `hcl:"lags,optional"`
	Params *hcl.Attribute `hcl:"params,optional"`
}

// evalContext exposes date() and duration() so files can validate literals early
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{},
		Functions: map[string]function.Function{
			"date": function.New(&function.Spec{
				Params: []function.Parameter{
					{
						Name: "date",
						Type: cty.String,
					},
				},
				Type: function.StaticReturnType(cty.String),
				Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
					if _, err := experiment.ParseDate(args[0].AsString()); err != nil {
						return cty.NilVal, err
					}
					return args[0], nil
				},
			}),
			"duration": function.New(&function.Spec{
				Params: []function.Parameter{
					{
						Name: "duration",
						Type: cty.String,
					},
				},
				Type: function.StaticReturnType(cty.String),
				Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
					if _, err := time.ParseDuration(args[0].AsString()); err != nil {
						return cty.NilVal, err
					}
					return args[0], nil
				},
			}),
		},
	}
}

// ParseExperiment parses HCL content into an experiment
func ParseExperiment(hclContent string) (*experiment.Experiment, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL([]byte(hclContent), "experiment.hcl")
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %s", diags.Error())
	}
	return parseExperimentFromFile(file)
}

// parseExperimentFromFile decodes a parsed HCL file object
func parseExperimentFromFile(file *hcl.File) (*experiment.Experiment, error) {
	evalCtx := evalContext()

	var hclExp HCLExperiment
	diags := gohcl.DecodeBody(file.Body, evalCtx, &hclExp)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL body: %s", diags.Error())
	}
	return convertHCLExperiment(&hclExp, evalCtx)
}

// convertHCLExperiment maps the HCL structures onto experiment types
func convertHCLExperiment(hclExp *HCLExperiment, evalCtx *hcl.EvalContext) (*experiment.Experiment, error) {
	cutoff, err := experiment.ParseDate(hclExp.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cutoff: %w", err)
	}

	exp := &experiment.Experiment{
		Name:       hclExp.Name,
		Cutoff:     cutoff,
		Covariates: hclExp.Covariates,
		Strategies: make([]experiment.Strategy, 0, len(hclExp.Strategies)),
	}

	if hclExp.SeriesID != nil {
		exp.SeriesID = *hclExp.SeriesID
	}
	if hclExp.Frequency != nil {
		freq, err := timeline.ParseFrequency(*hclExp.Frequency)
		if err != nil {
			return nil, err
		}
		exp.Frequency = freq
	}
	if hclExp.StepBudget != nil {
		budget, err := time.ParseDuration(*hclExp.StepBudget)
		if err != nil {
			return nil, fmt.Errorf("failed to parse step_budget: %w", err)
		}
		exp.StepBudget = budget
	}

	for _, hclStrategy := range hclExp.Strategies {
		strategy := experiment.Strategy{
			Name: hclStrategy.Name,
			Kind: forecast.Kind(hclStrategy.Kind),
		}

		if hclStrategy.Refit != nil {
			refit, err := engine.ParseRefitPolicy(*hclStrategy.Refit)
			if err != nil {
				return nil, fmt.Errorf("strategy %q: %w", hclStrategy.Name, err)
			}
			strategy.Refit = refit
		}
		if hclStrategy.Lags != nil {
			strategy.Lags = *hclStrategy.Lags
		}

		if hclStrategy.Params != nil {
			paramsVal, diags := hclStrategy.Params.Expr.Value(evalCtx)
			if diags.HasErrors() {
				return nil, fmt.Errorf("failed to evaluate params: %s", diags.Error())
			}
			params, err := numericParams(hclValueToMap(paramsVal))
			if err != nil {
				return nil, fmt.Errorf("strategy %q: %w", hclStrategy.Name, err)
			}
			strategy.Params = params
		}

		exp.Strategies = append(exp.Strategies, strategy)
	}

	return exp, nil
}

func numericParams(raw map[string]interface{}) (map[string]float64, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("param %q must be a number, got %T", k, v)
		}
		out[k] = f
	}
	return out, nil
}

// hclValueToMap converts a cty.Value (HCL's type system) to a Go map[string]interface{}
func hclValueToMap(val cty.Value) map[string]interface{} {
	if val.IsNull() {
		return nil
	}

	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil
	}

	result := make(map[string]interface{})
	for key, attr := range val.AsValueMap() {
		result[key] = hclValueToInterface(attr)
	}
	return result
}

// hclValueToInterface converts a cty.Value to a Go interface{}
func hclValueToInterface(val cty.Value) interface{} {
	if val.IsNull() {
		return nil
	}

	switch {
	case val.Type() == cty.String:
		return val.AsString()
	case val.Type() == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f
	case val.Type() == cty.Bool:
		return val.True()
	case val.Type().IsObjectType() || val.Type().IsMapType():
		return hclValueToMap(val)
	case val.Type().IsListType() || val.Type().IsTupleType():
		values := val.AsValueSlice()
		result := make([]interface{}, len(values))
		for i, v := range values {
			result[i] = hclValueToInterface(v)
		}
		return result
	default:
		return val.GoString()
	}
}

// IsHCL attempts to detect if the given content is in HCL format
func IsHCL(content []byte) bool {
	_, diags := hclsyntax.ParseConfig(content, "", hcl.Pos{Line: 1, Column: 1})
	return !diags.HasErrors()
}
