package timeline

import (
	"fmt"
	"sort"
	"time"
)

// Split partitions a series at cutoff: train holds dates before cutoff, test the rest.
// Both sides keep the original order and must be non-empty.
func Split(series Series, cutoff time.Time) (train, test Series, err error) {
	// first index whose date is >= cutoff
	idx := sort.Search(len(series.points), func(i int) bool {
		return !series.points[i].Date.Before(cutoff)
	})

	if idx == 0 {
		return Series{}, Series{}, fmt.Errorf("%w: no observations before %s", ErrEmptyPartition, cutoff.Format(time.DateOnly))
	}
	if idx == len(series.points) {
		return Series{}, Series{}, fmt.Errorf("%w: no observations on or after %s", ErrEmptyPartition, cutoff.Format(time.DateOnly))
	}

	return series.Slice(0, idx), series.Slice(idx, len(series.points)), nil
}
