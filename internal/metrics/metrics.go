package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"facereview/internal/services"
)

const namespace = "facereview"

// Recorder owns the engine collectors. All methods are safe on a nil
// receiver so components can run without metrics in tests.
type Recorder struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	rollbacks         *prometheus.CounterVec
	bulkItems         *prometheus.CounterVec
	monitorSessions   *prometheus.CounterVec
	monitorOutcomes   *prometheus.CounterVec
	activeStreams     prometheus.Gauge
	httpDuration      *prometheus.HistogramVec
}

// New registers every collector on a private registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Review operations by operation and result kind",
		}, []string{"operation", "result"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of review operations including the backend round trip",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"operation"}),
		rollbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Optimistic updates reverted after a failed backend call",
		}, []string{"operation"}),
		bulkItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_items_total",
			Help:      "Suggestions processed by bulk actions",
		}, []string{"action", "result"}),
		monitorSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_sessions_total",
			Help:      "Job progress sessions by transport mode",
		}, []string{"mode"}),
		monitorOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_outcomes_total",
			Help:      "Terminal outcomes of job progress sessions",
		}, []string{"outcome"}),
		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of open job progress event streams",
		}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Backend HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Registry exposes the private registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Operation records the outcome and duration of a single review operation.
func (r *Recorder) Operation(operation string, started time.Time, err error) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, services.Kind(err)).Inc()
	r.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Rollback counts a reverted optimistic update.
func (r *Recorder) Rollback(operation string) {
	if r == nil {
		return
	}
	r.rollbacks.WithLabelValues(operation).Inc()
}

// BulkItems adds n items for the action/result pair.
func (r *Recorder) BulkItems(action, result string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.bulkItems.WithLabelValues(action, result).Add(float64(n))
}

// MonitorSession counts a monitor entering the given mode.
func (r *Recorder) MonitorSession(mode string) {
	if r == nil {
		return
	}
	r.monitorSessions.WithLabelValues(mode).Inc()
}

// MonitorOutcome counts a terminal monitor outcome.
func (r *Recorder) MonitorOutcome(outcome string) {
	if r == nil {
		return
	}
	r.monitorOutcomes.WithLabelValues(outcome).Inc()
}

// StreamOpened and StreamClosed track open event streams.
func (r *Recorder) StreamOpened() {
	if r == nil {
		return
	}
	r.activeStreams.Inc()
}

func (r *Recorder) StreamClosed() {
	if r == nil {
		return
	}
	r.activeStreams.Dec()
}

// HTTPRequest observes one backend request. Status 0 marks a transport failure.
func (r *Recorder) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = fmt.Sprintf("%d", status)
	}
	r.httpDuration.WithLabelValues(method, route, label).Observe(elapsed.Seconds())
}

// WriteTextfile writes the current values in the node-exporter textfile format.
// An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
