package timeline

import (
	"testing"
	"time"
)

func TestObservationDecoder(t *testing.T) {
	decoder := NewObservationDecoder()

	tests := []struct {
		name      string
		raw       string
		wantDate  time.Time
		wantPrice float64
		wantCovs  map[string]float64
		wantErr   bool
	}{
		{
			name:      "flat record with aliases",
			raw:       `{"date": "2024-01-01", "price": 4100.5, "prcp": 80.2, "fx": 12.1}`,
			wantDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantPrice: 4100.5,
			wantCovs:  map[string]float64{"rainfall": 80.2, "exchange_rate": 12.1},
		},
		{
			name:      "nested covariates and RFC3339 timestamp",
			raw:       `{"timestamp": "2024-02-01T00:00:00Z", "close": 4200, "covariates": {"Temperature": 26.5}}`,
			wantDate:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			wantPrice: 4200,
			wantCovs:  map[string]float64{"temperature": 26.5},
		},
		{
			name:    "missing price",
			raw:     `{"date": "2024-01-01", "rainfall": 1}`,
			wantErr: true,
		},
		{
			name:    "missing date",
			raw:     `{"price": 1}`,
			wantErr: true,
		},
		{
			name:    "invalid JSON",
			raw:     `{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := decoder.Decode([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %+v", obs)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !obs.Date.Equal(tt.wantDate) {
				t.Errorf("Expected date %v, got %v", tt.wantDate, obs.Date)
			}
			if obs.Price != tt.wantPrice {
				t.Errorf("Expected price %f, got %f", tt.wantPrice, obs.Price)
			}
			if len(obs.Covariates) != len(tt.wantCovs) {
				t.Errorf("Expected covariates %v, got %v", tt.wantCovs, obs.Covariates)
			}
			for k, v := range tt.wantCovs {
				if obs.Covariates[k] != v {
					t.Errorf("covariate %s: expected %f, got %f", k, v, obs.Covariates[k])
				}
			}
		})
	}
}

func TestDecodeAll(t *testing.T) {
	decoder := NewObservationDecoder()
	records := [][]byte{
		[]byte(`{"date": "2024-01-01", "price": 1}`),
		[]byte(`{"date": "2024-02-01"}`),
	}
	if _, err := decoder.DecodeAll(records); err == nil {
		t.Errorf("Expected error for second record")
	}
}
