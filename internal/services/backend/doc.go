// Package backend is the typed HTTP client for the face review REST API.
//
// Every call sends an X-Request-ID correlation header and, when configured, a
// bearer token. Non-2xx responses are translated onto the markers in
// internal/services so callers can branch with errors.Is; the raw status and
// body remain available through *StatusError.
package backend
