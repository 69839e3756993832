package reembed

import "errors"

var (
	// ErrSourceRequired is returned when no source index is given
	ErrSourceRequired = errors.New("source index required")
	// ErrTargetRequired is returned when no target index is given
	ErrTargetRequired = errors.New("target index required")
	// ErrEmbedderRequired is returned when no embedder is given
	ErrEmbedderRequired = errors.New("embedder required")
)
