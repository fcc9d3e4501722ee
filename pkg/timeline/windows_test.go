package timeline

import (
	"errors"
	"testing"
)

func TestLagWindowRow(t *testing.T) {
	w := LagWindow{Lags: 2, Covariate: Schema{"rainfall"}, Intercept: true}

	row, err := w.Row([]float64{0.1, 0.2, 0.3}, CovariateRow{"rainfall": 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []float64{1, 0.3, 0.2, 7}
	if len(row) != w.Width() || len(row) != len(want) {
		t.Fatalf("Expected width %d, got %d", len(want), len(row))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %d: expected %f, got %f", i, want[i], row[i])
		}
	}
}

func TestLagWindowErrors(t *testing.T) {
	w := LagWindow{Lags: 2, Covariate: Schema{"rainfall"}}

	if _, err := w.Row([]float64{0.1}, CovariateRow{"rainfall": 1}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}
	if _, err := w.Row([]float64{0.1, 0.2}, CovariateRow{"temperature": 1}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
	if _, _, err := w.Design([]float64{0.1, 0.2}, []CovariateRow{{"rainfall": 1}, {"rainfall": 2}}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}
	if _, _, err := w.Design([]float64{0.1, 0.2, 0.3}, []CovariateRow{{"rainfall": 1}}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Expected ErrLengthMismatch, got %v", err)
	}
}

func TestLagWindowDesign(t *testing.T) {
	w := LagWindow{Lags: 1}
	values := []float64{1, 2, 3, 4}
	covs := make([]CovariateRow, len(values))

	x, y, err := w.Design(values, covs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(x) != 3 || len(y) != 3 {
		t.Fatalf("Expected 3 rows, got %d/%d", len(x), len(y))
	}
	for i := range y {
		if x[i][0] != values[i] || y[i] != values[i+1] {
			t.Errorf("row %d: x=%v y=%f", i, x[i], y[i])
		}
	}
}
