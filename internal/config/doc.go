// Package config loads, normalizes, and validates nica configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. Besides the application knobs (paths,
// logging, notifications) the Config carries the Analysis settings record
// consumed by every pipeline stage, the grand-average overrides, and the
// numerical tuning constants.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
