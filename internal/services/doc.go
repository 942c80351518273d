// Package services defines shared utilities consumed by the review engine
// components and the backend client.
//
// Key responsibilities:
//   - Context helpers that stamp face IDs, suggestion IDs, operation names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that give every failure a
//     stable classification (not found, already reviewed, busy, validation,
//     quota, transport, timeout).
//
// Use these helpers when wiring new engine logic so error handling and
// observability stay uniform across components.
package services
