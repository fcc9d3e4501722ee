package timeline

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AggregationType represents different types of aggregations
type AggregationType string

const (
	Sum        AggregationType = "sum"
	Avg        AggregationType = "avg"
	Min        AggregationType = "min"
	Max        AggregationType = "max"
	Count      AggregationType = "count"
	StdDev     AggregationType = "stddev"
	Variance   AggregationType = "variance"
	Percentile AggregationType = "percentile"
	Median     AggregationType = "median"
	First      AggregationType = "first"
	Last       AggregationType = "last"
)

// AggregationResult represents the result of an aggregation operation
type AggregationResult struct {
	Type  AggregationType `json:"type"`
	Value float64         `json:"value"`
	Count int             `json:"count"`
}

// Summary describes the distribution of a value sequence
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// Aggregate reduces values (kept in their given order) to a single number
func Aggregate(values []float64, aggType AggregationType, percentile float64) AggregationResult {
	result := AggregationResult{Type: aggType, Count: len(values)}
	if len(values) == 0 {
		return result
	}

	switch aggType {
	case Sum:
		result.Value = floats.Sum(values)
	case Avg:
		result.Value = stat.Mean(values, nil)
	case Min:
		result.Value = floats.Min(values)
	case Max:
		result.Value = floats.Max(values)
	case Count:
		result.Value = float64(len(values))
	case StdDev:
		result.Value = stat.PopStdDev(values, nil)
	case Variance:
		result.Value = stat.PopVariance(values, nil)
	case Percentile:
		result.Value = percentileValues(values, percentile)
	case Median:
		result.Value = percentileValues(values, 50.0)
	case First:
		result.Value = values[0]
	case Last:
		result.Value = values[len(values)-1]
	}

	return result
}

// Summarize computes the descriptive statistics reported for train and test windows
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	return Summary{
		Count:  len(values),
		Mean:   Aggregate(values, Avg, 0).Value,
		StdDev: Aggregate(values, StdDev, 0).Value,
		Min:    Aggregate(values, Min, 0).Value,
		Max:    Aggregate(values, Max, 0).Value,
		Median: Aggregate(values, Median, 0).Value,
	}
}

// DiffLogValues returns the defined log differences of a series
func DiffLogValues(series Series) []float64 {
	points := series.Differenced()
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.DiffLogPrice
	}
	return out
}

func percentileValues(values []float64, percentile float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if percentile <= 0 {
		return sorted[0]
	}
	if percentile >= 100 {
		return sorted[len(sorted)-1]
	}

	// Linear interpolation between closest ranks
	index := (percentile / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
