package temporal

import (
	"context"
	"testing"
)

func TestMemorySeriesStore(t *testing.T) {
	store := NewMemorySeriesStore()
	ctx := context.Background()

	records := [][]byte{
		[]byte(`{"date":"2024-01-01","price":4000}`),
		[]byte(`{"date":"2024-02-01","price":4100}`),
	}
	if err := store.AppendObservations(ctx, "cocoa", records); err != nil {
		t.Fatalf("AppendObservations failed: %v", err)
	}

	// the store must not alias the caller's buffers
	records[0][2] = 'X'

	loaded, err := store.LoadObservations(ctx, "cocoa")
	if err != nil {
		t.Fatalf("LoadObservations failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(loaded))
	}
	if string(loaded[0]) != `{"date":"2024-01-01","price":4000}` {
		t.Errorf("Stored record was mutated: %s", loaded[0])
	}

	loaded[1][2] = 'X'
	again, _ := store.LoadObservations(ctx, "cocoa")
	if string(again[1]) != `{"date":"2024-02-01","price":4100}` {
		t.Errorf("Loaded records alias the store: %s", again[1])
	}

	if store.Count("cocoa") != 2 {
		t.Errorf("Expected count 2, got %d", store.Count("cocoa"))
	}
	if store.Count("coffee") != 0 {
		t.Errorf("Expected unknown series to be empty, got %d", store.Count("coffee"))
	}

	empty, err := store.LoadObservations(ctx, "coffee")
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected no records for unknown series, got %d (err %v)", len(empty), err)
	}
}

func TestMemorySeriesStoreCancelled(t *testing.T) {
	store := NewMemorySeriesStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.AppendObservations(ctx, "cocoa", [][]byte{[]byte(`{}`)}); err == nil {
		t.Error("Expected append on a cancelled context to fail")
	}
	if _, err := store.LoadObservations(ctx, "cocoa"); err == nil {
		t.Error("Expected load on a cancelled context to fail")
	}
	if store.Count("cocoa") != 0 {
		t.Errorf("Expected nothing stored, got %d", store.Count("cocoa"))
	}
}
