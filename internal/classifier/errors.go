package classifier

import "errors"

// Classifier error types.
var (
	ErrEmptyPayload = errors.New("image payload is empty")
)
