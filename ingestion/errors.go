package ingestion

import "errors"

var (
	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrEmbedderRequired is returned when the provider has no embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrCheckpointRepositoryRequired is returned when checkpoints are enabled without a store.
	ErrCheckpointRepositoryRequired = errors.New("checkpoint repository required")

	// ErrCheckpointKeyRequired is returned when checkpoints are enabled without a key.
	ErrCheckpointKeyRequired = errors.New("checkpoint key required")

	// ErrInvalidOption is returned for out-of-range option values.
	ErrInvalidOption = errors.New("invalid pipeline option")
)
