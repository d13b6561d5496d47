// Package config loads, normalizes, and validates ferry configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FERRY_API_KEY. The Config type centralizes every knob the CLI, the upload
// workers, and the verification poller need so they are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, bounded worker counts, and clear validation errors.
package config
