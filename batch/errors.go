package batch

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
	// ErrInvalidDelay is returned for a negative backoff delay
	ErrInvalidDelay = errors.New("retry delay must not be negative")
	// ErrInvalidBatchSize is returned when a batch size is <= 0
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")
)
