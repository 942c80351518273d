// Package main hosts the facereview CLI entrypoint and command graph.
//
// Each invocation loads configuration, builds an engine over the review API
// and the local state backend, runs one command, and closes the engine so
// recent selections and metrics are flushed. Commands only translate flags
// into engine calls and render results; review semantics live in the
// internal packages.
package main
