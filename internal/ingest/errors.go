package ingest

import "errors"

// Ingestion error types. Validation errors reject the request before any
// session, window, or rate-limit state is mutated.
var (
	ErrMissingSessionID = errors.New("session_id is required")
	ErrMissingStudentID = errors.New("student_id is required")
	ErrMissingEmotion   = errors.New("either emotion label or image payload is required")
	// ErrClassificationFailed covers classifier errors and out-of-set
	// classifier output. The sample is dropped, never retried.
	ErrClassificationFailed = errors.New("emotion classification failed")
	ErrRateLimited          = errors.New("sample rate limit exceeded for student")
)
