package badger

import "errors"

// ErrBackendRequired is returned when a nil backend is passed to a constructor.
var ErrBackendRequired = errors.New("backend required")
