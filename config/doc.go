// Package config assembles the settings reviewrag needs from the process
// environment, an optional .env file and an optional YAML settings file.
//
// Precedence, highest first: real environment variables, the .env file,
// the YAML file, built-in defaults. Secrets (API keys, tokens) are only
// read from the environment or the .env file.
//
// Every missing or malformed key is collected before failing, so one
// *core.ConfigurationError lists all of them. The returned Config is
// passed explicitly to the components that need it; no other package
// reads the environment.
package config
