package timeline

import "errors"

// Error taxonomy shared by the transform, split, model and evaluation layers.
// Callers match with errors.Is; every producer wraps these with context.
var (
	// ErrDomain signals an invalid transform input such as a non-positive price
	ErrDomain = errors.New("domain error")

	// ErrEmptyPartition signals a split that leaves the train or test side empty
	ErrEmptyPartition = errors.New("empty partition")

	// ErrInsufficientData signals a window too short for a model, or a missing covariate
	ErrInsufficientData = errors.New("insufficient data")

	// ErrShapeMismatch signals covariate schema drift between fit and predict
	ErrShapeMismatch = errors.New("covariate shape mismatch")

	// ErrLengthMismatch signals misaligned series handed to evaluation
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrNotOrdered signals dates that are not strictly increasing or not contiguous
	ErrNotOrdered = errors.New("series not ordered")
)
