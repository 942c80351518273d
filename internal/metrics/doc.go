// Package metrics exposes Prometheus collectors for the review engine on a
// private registry. CLI runs are short lived, so values are exported by
// writing a node-exporter textfile rather than serving /metrics.
package metrics
