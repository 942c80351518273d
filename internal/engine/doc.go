// Package engine wires the review components together from configuration.
//
// An Engine owns the local suggestion store, the face board, the recent
// person cache and its key/value backend, the backend client, and the
// coordinator, bulk processor, job monitor and loader built over them. The
// CLI constructs one Engine per invocation and closes it on exit, which also
// flushes the metrics textfile when one is configured.
package engine
