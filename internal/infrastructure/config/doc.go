// Package config loads and validates Hearth Core configuration.
//
// Configuration is layered: hardcoded defaults, then a YAML file, then
// HEARTH_* environment variable overrides. The loaded Config is validated
// before use; an invalid configuration aborts startup.
package config
