package engine

import (
	"fmt"
	"time"

	"github.com/leowmjw/go-temporal-forecast/pkg/forecast"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

// RollingHistory is the working window of a stepwise run: real training values
// followed by the engine's own predictions, each with the real covariates of its date
type RollingHistory struct {
	dates      []time.Time
	values     []float64
	covariates []timeline.CovariateRow
	predicted  []bool
}

// NewRollingHistory seeds the window with the differenced training points
func NewRollingHistory(train timeline.Series) *RollingHistory {
	h := &RollingHistory{}
	for _, p := range train.Differenced() {
		h.dates = append(h.dates, p.Date)
		h.values = append(h.values, p.DiffLogPrice)
		h.covariates = append(h.covariates, p.Covariates)
		h.predicted = append(h.predicted, false)
	}
	return h
}

// Len returns the number of entries
func (h *RollingHistory) Len() int {
	return len(h.values)
}

// LastDate returns the newest date, or the zero time when empty
func (h *RollingHistory) LastDate() time.Time {
	if len(h.dates) == 0 {
		return time.Time{}
	}
	return h.dates[len(h.dates)-1]
}

// Append extends the window by one predicted entry; dates must strictly increase
func (h *RollingHistory) Append(date time.Time, value float64, covariates timeline.CovariateRow) error {
	if len(h.dates) > 0 && !date.After(h.LastDate()) {
		return fmt.Errorf("%w: %s does not follow %s", timeline.ErrNotOrdered, date.Format(time.DateOnly), h.LastDate().Format(time.DateOnly))
	}
	h.dates = append(h.dates, date)
	h.values = append(h.values, value)
	h.covariates = append(h.covariates, covariates.Clone())
	h.predicted = append(h.predicted, true)
	return nil
}

// Predicted reports whether entry i was produced by the engine
func (h *RollingHistory) Predicted(i int) bool {
	return h.predicted[i]
}

// View returns a copy of the window that models may read freely
func (h *RollingHistory) View() forecast.History {
	return forecast.History{
		Dates:      h.dates,
		Values:     h.values,
		Covariates: h.covariates,
	}.Clone()
}
