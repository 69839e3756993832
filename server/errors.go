package server

import "errors"

var (
	// ErrSearcherRequired is returned when no searcher is supplied.
	ErrSearcherRequired = errors.New("searcher is required")

	// ErrAnswersDisabled is reported by /answer when the server has no answerer.
	ErrAnswersDisabled = errors.New("answers are not enabled")
)
