package timeline

import (
	"fmt"
	"math"
)

// ToLog returns ln(price); non-positive prices are rejected
func ToLog(price float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("%w: price %v must be positive", ErrDomain, price)
	}
	return math.Log(price), nil
}

// ToLogSeries applies ToLog to every price
func ToLogSeries(prices []float64) ([]float64, error) {
	out := make([]float64, len(prices))
	for i, p := range prices {
		v, err := ToLog(p)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// ToDiffLog returns first differences; the undefined first element is dropped
func ToDiffLog(logs []float64) []float64 {
	if len(logs) < 2 {
		return []float64{}
	}
	out := make([]float64, len(logs)-1)
	for i := 1; i < len(logs); i++ {
		out[i-1] = logs[i] - logs[i-1]
	}
	return out
}

// Reconstruct returns anchor plus the running sum of diffs.
// result[i] = anchor + diffs[0] + ... + diffs[i]
func Reconstruct(anchor float64, diffs []float64) []float64 {
	out := make([]float64, len(diffs))
	level := anchor
	for i, d := range diffs {
		level += d
		out[i] = level
	}
	return out
}

// ToPrice exponentiates log prices
func ToPrice(logs []float64) []float64 {
	out := make([]float64, len(logs))
	for i, v := range logs {
		out[i] = math.Exp(v)
	}
	return out
}

// ReconstructToPrice rebuilds price-scale values from difference-scale predictions
// anchored at a single known log price
func ReconstructToPrice(anchor float64, diffs []float64) []float64 {
	return ToPrice(Reconstruct(anchor, diffs))
}
