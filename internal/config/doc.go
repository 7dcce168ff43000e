// Package config loads and validates the gateway configuration.
//
// Configuration is resolved in three layers: built-in defaults, an optional
// YAML file, and MESHGW_* environment variable overrides. The resolved value
// is passed into the other components; nothing outside this package reads
// configuration storage directly.
package config
