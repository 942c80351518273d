// Package bulk reviews many suggestions with one backend request and
// reconciles the per-id outcome with the local store.
package bulk
