package temporal

import (
	"context"
	"sync"
)

// SeriesStore defines durable storage for raw observation records, keyed by series id
type SeriesStore interface {
	AppendObservations(ctx context.Context, seriesID string, records [][]byte) error
	LoadObservations(ctx context.Context, seriesID string) ([][]byte, error)
}

// MemorySeriesStore implements SeriesStore in memory
type MemorySeriesStore struct {
	mu      sync.RWMutex
	records map[string][][]byte // seriesID -> raw observations
}

// NewMemorySeriesStore creates an empty in-memory store
func NewMemorySeriesStore() *MemorySeriesStore {
	return &MemorySeriesStore{
		records: make(map[string][][]byte),
	}
}

// AppendObservations appends raw records to a series
func (m *MemorySeriesStore) AppendObservations(ctx context.Context, seriesID string, records [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		// callers may reuse their buffers
		m.records[seriesID] = append(m.records[seriesID], append([]byte(nil), r...))
	}
	return nil
}

// LoadObservations returns a copy of every record of a series in arrival order.
// An unknown series has no records.
func (m *MemorySeriesStore) LoadObservations(ctx context.Context, seriesID string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.records[seriesID]
	out := make([][]byte, len(stored))
	for i, r := range stored {
		out[i] = append([]byte(nil), r...)
	}
	return out, nil
}

// Count returns the number of records stored for a series
func (m *MemorySeriesStore) Count(seriesID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[seriesID])
}
