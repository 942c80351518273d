// Package config loads, normalizes, and validates facereview configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FACEREVIEW_API_URL and FACEREVIEW_API_TOKEN. The Config type centralizes
// every knob the engine and CLI need: backend connection, local state
// backend, recent-selection capacity, assignment policy, and job monitoring
// intervals.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
