package types

import "errors"

// Validation errors shared across components. All of these reject input
// before any session state is mutated.
var (
	ErrInvalidSessionID = errors.New("session ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidStudentID = errors.New("student ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidEmotion   = errors.New("emotion label is not one of Focused, Confused, Bored, Distracted")
	ErrInvalidRole      = errors.New("role must be 'student' or 'faculty'")
	ErrMissingTimestamp = errors.New("sample timestamp is required")
)
