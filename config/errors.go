package config

import "errors"

var (
	// ErrSettingsFile is returned when the YAML settings file cannot be read or parsed.
	ErrSettingsFile = errors.New("cannot read settings file")

	// ErrDotEnvFile is returned when an explicitly requested .env file cannot be read.
	ErrDotEnvFile = errors.New("cannot read .env file")
)
