// Package config loads the service configuration from YAML with
// environment overrides.
package config
