package corpus

import "errors"

var (
	// ErrEmptyColumnName is returned when a ColumnMap leaves a field unnamed
	ErrEmptyColumnName = errors.New("column name cannot be empty")
	// ErrInvalidDelimiter is returned for a delimiter csv cannot use
	ErrInvalidDelimiter = errors.New("invalid delimiter")
	// ErrLoggerRequired is returned when a nil logger is passed
	ErrLoggerRequired = errors.New("logger is required")
	// ErrIsDirectory is returned when the source path names a directory
	ErrIsDirectory = errors.New("source is a directory")
)
