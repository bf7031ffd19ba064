// Package config loads, normalizes, and validates loom configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and applies LOOM_* environment overrides.
// The Config type centralizes every knob the CLI and worker daemon need:
// storage paths, the business-unit partition set, queue defaults, worker
// polling cadence, and log output settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
