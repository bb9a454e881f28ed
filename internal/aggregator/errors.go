package aggregator

import "errors"

// Aggregator error types.
var (
	// ErrNoData indicates a session has no samples in the current window.
	// Callers surface this as the "no data" indicator; they must not invent
	// a distribution in its place.
	ErrNoData = errors.New("no samples in window for session")
)
