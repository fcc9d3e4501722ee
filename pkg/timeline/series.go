package timeline

import (
	"fmt"
	"math"
	"time"
)

// Frequency is the sampling cadence a series is expected to follow
type Frequency string

const (
	Irregular Frequency = ""
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
)

// ParseFrequency validates a frequency name
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case Irregular, Daily, Weekly, Monthly:
		return f, nil
	default:
		return Irregular, fmt.Errorf("unknown frequency %q", s)
	}
}

// Follows reports whether t is exactly one period after prev. Monthly
// periods are calendar months, so month-end dates are contiguous.
func (f Frequency) Follows(prev, t time.Time) bool {
	switch f {
	case Daily:
		return prev.AddDate(0, 0, 1).Equal(t)
	case Weekly:
		return prev.AddDate(0, 0, 7).Equal(t)
	case Monthly:
		return monthIndex(t)-monthIndex(prev) == 1
	default:
		return t.After(prev)
	}
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

// Series is an ordered, immutable sequence of points
type Series struct {
	points []Point
}

// NewSeries derives log and diff-log values from cleaned observations.
// Every observation must carry the covariates listed in required.
func NewSeries(observations []Observation, freq Frequency, required []string) (Series, error) {
	points := make([]Point, len(observations))

	for i, obs := range observations {
		if math.IsNaN(obs.Price) || math.IsInf(obs.Price, 0) {
			return Series{}, fmt.Errorf("observation %d (%s): %w: price is not finite", i, obs.Date.Format(time.DateOnly), ErrDomain)
		}
		logPrice, err := ToLog(obs.Price)
		if err != nil {
			return Series{}, fmt.Errorf("observation %d (%s): %w", i, obs.Date.Format(time.DateOnly), err)
		}

		for _, name := range required {
			v, ok := obs.Covariates[name]
			if !ok {
				return Series{}, fmt.Errorf("observation %d (%s): %w: missing covariate %q", i, obs.Date.Format(time.DateOnly), ErrInsufficientData, name)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Series{}, fmt.Errorf("observation %d (%s): %w: covariate %q is not finite", i, obs.Date.Format(time.DateOnly), ErrDomain, name)
			}
		}

		if i > 0 {
			prev := observations[i-1].Date
			if !obs.Date.After(prev) {
				return Series{}, fmt.Errorf("observation %d (%s): %w: date does not follow %s", i, obs.Date.Format(time.DateOnly), ErrNotOrdered, prev.Format(time.DateOnly))
			}
			if !freq.Follows(prev, obs.Date) {
				return Series{}, fmt.Errorf("observation %d (%s): %w: gap after %s for %s series", i, obs.Date.Format(time.DateOnly), ErrNotOrdered, prev.Format(time.DateOnly), freq)
			}
		}

		points[i] = Point{
			Date:       obs.Date,
			Price:      obs.Price,
			LogPrice:   logPrice,
			Covariates: selectCovariates(obs.Covariates, required),
		}
		if i > 0 {
			points[i].DiffLogPrice = logPrice - points[i-1].LogPrice
			points[i].HasDiff = true
		}
	}

	return Series{points: points}, nil
}

// selectCovariates keeps only the required covariates, or all of them when none are named
func selectCovariates(all map[string]float64, required []string) CovariateRow {
	if len(required) == 0 {
		return CovariateRow(all).Clone()
	}
	row := make(CovariateRow, len(required))
	for _, name := range required {
		row[name] = all[name]
	}
	return row
}

// Len returns the number of points
func (s Series) Len() int {
	return len(s.points)
}

// At returns a copy of the i-th point
func (s Series) At(i int) Point {
	p := s.points[i]
	p.Covariates = p.Covariates.Clone()
	return p
}

// Points returns a copy of all points
func (s Series) Points() []Point {
	out := make([]Point, len(s.points))
	for i := range s.points {
		out[i] = s.At(i)
	}
	return out
}

// Slice returns the points in [i, j) as a new series sharing no mutable state
func (s Series) Slice(i, j int) Series {
	points := make([]Point, j-i)
	for k := range points {
		points[k] = s.At(i + k)
	}
	return Series{points: points}
}

// Dates returns all dates in order
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s.points))
	for i, p := range s.points {
		out[i] = p.Date
	}
	return out
}

// Prices returns all raw prices in order
func (s Series) Prices() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Price
	}
	return out
}

// LogPrices returns all log prices in order
func (s Series) LogPrices() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.LogPrice
	}
	return out
}

// Differenced returns the points that carry a defined log difference
func (s Series) Differenced() []Point {
	var out []Point
	for i, p := range s.points {
		if p.HasDiff {
			out = append(out, s.At(i))
		}
	}
	return out
}

// First returns the first point; callers must check Len first
func (s Series) First() Point {
	return s.At(0)
}

// Last returns the last point; callers must check Len first
func (s Series) Last() Point {
	return s.At(len(s.points) - 1)
}

// Observations converts the series back to its input form
func (s Series) Observations() []Observation {
	out := make([]Observation, len(s.points))
	for i, p := range s.points {
		out[i] = Observation{Date: p.Date, Price: p.Price, Covariates: map[string]float64(p.Covariates.Clone())}
	}
	return out
}
