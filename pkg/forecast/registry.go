package forecast

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownKind is returned when no builder is registered for a kind
var ErrUnknownKind = errors.New("unknown forecaster kind")

// Options configures a forecaster instance
type Options struct {
	Lags   int                `json:"lags,omitempty"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Param returns a named parameter or def when it is not set
func (o Options) Param(name string, def float64) float64 {
	if v, ok := o.Params[name]; ok {
		return v
	}
	return def
}

func (o Options) lags(def int) int {
	if o.Lags > 0 {
		return o.Lags
	}
	return def
}

// Builder creates a forecaster from options
type Builder func(opts Options) (Forecaster, error)

// Registry maps forecaster kinds to builders
type Registry struct {
	mu       sync.RWMutex
	builders map[Kind]Builder
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{builders: make(map[Kind]Builder)}
}

// DefaultRegistry returns a registry with every built-in family
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(KindNaive, func(opts Options) (Forecaster, error) { return NewNaive(), nil })
	r.Register(KindETS, func(opts Options) (Forecaster, error) { return NewETS(opts), nil })
	r.Register(KindHolt, func(opts Options) (Forecaster, error) { return NewHolt(opts), nil })
	r.Register(KindARIMA, func(opts Options) (Forecaster, error) { return NewARIMA(opts, false), nil })
	r.Register(KindARIMAX, func(opts Options) (Forecaster, error) { return NewARIMA(opts, true), nil })
	r.Register(KindGARCH, func(opts Options) (Forecaster, error) { return NewGARCH(opts), nil })
	r.Register(KindRegression, func(opts Options) (Forecaster, error) { return NewRegression(opts), nil })
	r.Register(KindSequence, func(opts Options) (Forecaster, error) { return NewSequence(opts), nil })

	return r
}

// Register adds or replaces a builder
func (r *Registry) Register(kind Kind, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[kind] = builder
}

// Build creates a forecaster of the given kind
func (r *Registry) Build(kind Kind, opts Options) (Forecaster, error) {
	r.mu.RLock()
	builder, ok := r.builders[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return builder(opts)
}

// Has reports whether kind is registered
func (r *Registry) Has(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[kind]
	return ok
}

// Kinds lists the registered kinds in sorted order
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.builders))
	for k := range r.builders {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
