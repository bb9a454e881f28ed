package websocket

import "errors"

// Connection-related errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidJSON      = errors.New("invalid JSON data")
	ErrAlreadyJoined    = errors.New("connection has already joined a session")
)
