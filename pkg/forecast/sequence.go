package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// Sequence is a single-hidden-layer tanh network over the lag window and covariates,
// trained by full-batch gradient descent from a fixed seed. Training is deterministic
// for a given history and options.
//
// Params: hidden (8), epochs (300), learning_rate (0.05), seed (42).
type Sequence struct {
	opts Options
}

// NewSequence creates a sequence forecaster; Lags defaults to 3
func NewSequence(opts Options) *Sequence {
	return &Sequence{opts: opts}
}

func (s *Sequence) Kind() Kind { return KindSequence }

// PrefersSingleFit marks the network as fitted once per run by default
func (s *Sequence) PrefersSingleFit() bool { return true }

func (s *Sequence) Fit(ctx context.Context, history History) (StepModel, error) {
	lags := s.opts.lags(3)
	if err := requireHistory(KindSequence, history, lags+1); err != nil {
		return nil, err
	}

	std, err := fitStandardizer(KindSequence, history.Covariates)
	if err != nil {
		return nil, err
	}
	yMean, yStd := stat.MeanStdDev(history.Values, nil)
	if yStd == 0 || math.IsNaN(yStd) {
		yStd = 1
	}

	m := &sequenceModel{
		window: timeline.LagWindow{Lags: lags, Covariate: std.schema},
		std:    std,
		yMean:  yMean,
		yStd:   yStd,
	}

	scaledValues := make([]float64, history.Len())
	for i, v := range history.Values {
		scaledValues[i] = (v - yMean) / yStd
	}
	scaledCovs, err := std.applyAll(KindSequence, history.Covariates)
	if err != nil {
		return nil, err
	}
	x, y, err := m.window.Design(scaledValues, scaledCovs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KindSequence, err)
	}

	hidden := int(s.opts.Param("hidden", 8))
	if hidden < 1 {
		return nil, fmt.Errorf("%s: hidden units must be positive, got %d", KindSequence, hidden)
	}
	m.init(m.window.Width(), hidden, int64(s.opts.Param("seed", 42)))

	epochs := int(s.opts.Param("epochs", 300))
	rate := s.opts.Param("learning_rate", 0.05)
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.step(x, y, rate)
	}

	for _, w := range m.w2 {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%s: %w: training diverged", KindSequence, timeline.ErrDomain)
		}
	}
	return m, nil
}

type sequenceModel struct {
	window timeline.LagWindow
	std    standardizer
	yMean  float64
	yStd   float64

	w1 [][]float64
	b1 []float64
	w2 []float64
	b2 float64
}

func (m *sequenceModel) init(inputs, hidden int, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	scale := 1 / math.Sqrt(float64(inputs))

	m.w1 = make([][]float64, hidden)
	m.b1 = make([]float64, hidden)
	m.w2 = make([]float64, hidden)
	for j := range m.w1 {
		m.w1[j] = make([]float64, inputs)
		for k := range m.w1[j] {
			m.w1[j][k] = (rng.Float64()*2 - 1) * scale
		}
		m.w2[j] = (rng.Float64()*2 - 1) / math.Sqrt(float64(hidden))
	}
}

func (m *sequenceModel) forward(x []float64, act []float64) float64 {
	out := m.b2
	for j := range m.w1 {
		act[j] = math.Tanh(floats.Dot(m.w1[j], x) + m.b1[j])
		out += m.w2[j] * act[j]
	}
	return out
}

// step applies one full-batch gradient descent update on the mean squared error
func (m *sequenceModel) step(x [][]float64, y []float64, rate float64) {
	hidden := len(m.w1)
	gw1 := make([][]float64, hidden)
	for j := range gw1 {
		gw1[j] = make([]float64, len(m.w1[j]))
	}
	gb1 := make([]float64, hidden)
	gw2 := make([]float64, hidden)
	var gb2 float64

	act := make([]float64, hidden)
	for i := range x {
		e := m.forward(x[i], act) - y[i]
		gb2 += e
		for j := 0; j < hidden; j++ {
			gw2[j] += e * act[j]
			delta := e * m.w2[j] * (1 - act[j]*act[j])
			gb1[j] += delta
			for k, v := range x[i] {
				gw1[j][k] += delta * v
			}
		}
	}

	n := float64(len(x))
	m.b2 -= rate * gb2 / n
	for j := 0; j < hidden; j++ {
		m.w2[j] -= rate * gw2[j] / n
		m.b1[j] -= rate * gb1[j] / n
		for k := range m.w1[j] {
			m.w1[j][k] -= rate * gw1[j][k] / n
		}
	}
}

func (m *sequenceModel) PredictOne(ctx context.Context, history History, next timeline.CovariateRow) (timeline.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return timeline.Prediction{}, err
	}

	scaledCovs, err := m.std.apply(KindSequence, next)
	if err != nil {
		return timeline.Prediction{}, err
	}
	lags := m.window.Lags
	if history.Len() < lags {
		return timeline.Prediction{}, fmt.Errorf("%s: %w: needs %d recent values, have %d", KindSequence, timeline.ErrInsufficientData, lags, history.Len())
	}
	recent := make([]float64, lags)
	for i, v := range history.Values[history.Len()-lags:] {
		recent[i] = (v - m.yMean) / m.yStd
	}

	row, err := m.window.Row(recent, scaledCovs)
	if err != nil {
		return timeline.Prediction{}, fmt.Errorf("%s: %w", KindSequence, err)
	}
	act := make([]float64, len(m.w1))
	return timeline.Prediction{Value: m.forward(row, act)*m.yStd + m.yMean}, nil
}
