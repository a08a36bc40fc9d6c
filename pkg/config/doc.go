// Package config loads foreman's configuration: an optional YAML base
// overridden by FOREMAN_* environment variables.
package config
