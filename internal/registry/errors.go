package registry

import "errors"

// Registry error types.
var (
	ErrNilConnection = errors.New("connection cannot be nil")
)
