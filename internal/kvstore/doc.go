// Package kvstore persists small pieces of session state (for example the
// recent person selection list) between CLI invocations.
//
// Two backends are available. The SQLite backend is the default and keeps
// entries in a single kv_entries table with WAL journaling. The file backend
// keeps one JSON document on disk, replaced atomically on every write and
// guarded by an advisory lock so concurrent processes do not interleave.
package kvstore
