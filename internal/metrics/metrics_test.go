package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"facereview/internal/services"
)

func TestOperationLabelsByErrorKind(t *testing.T) {
	r := New()
	r.Operation("accept", time.Now(), nil)
	r.Operation("accept", time.Now(), services.Wrap(services.ErrAlreadyReviewed, "assign", "accept", "", nil))
	r.Operation("accept", time.Now(), services.Wrap(services.ErrAlreadyReviewed, "assign", "accept", "", nil))

	if got := testutil.ToFloat64(r.operations.WithLabelValues("accept", "ok")); got != 1 {
		t.Fatalf("ok count = %v", got)
	}
	if got := testutil.ToFloat64(r.operations.WithLabelValues("accept", "already_reviewed")); got != 2 {
		t.Fatalf("already_reviewed count = %v", got)
	}
}

func TestCountersAndGauge(t *testing.T) {
	r := New()
	r.Rollback("assign")
	r.BulkItems("accept", "succeeded", 2)
	r.BulkItems("accept", "failed", 0)
	r.StreamOpened()
	r.StreamOpened()
	r.StreamClosed()
	r.MonitorSession("polling")
	r.MonitorOutcome("completed")

	if got := testutil.ToFloat64(r.rollbacks.WithLabelValues("assign")); got != 1 {
		t.Fatalf("rollbacks = %v", got)
	}
	if got := testutil.ToFloat64(r.bulkItems.WithLabelValues("accept", "succeeded")); got != 2 {
		t.Fatalf("bulk succeeded = %v", got)
	}
	if got := testutil.ToFloat64(r.activeStreams); got != 1 {
		t.Fatalf("active streams = %v", got)
	}
	if got := testutil.CollectAndCount(r.bulkItems); got != 1 {
		t.Fatalf("expected zero additions to create no series, got %d", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Operation("accept", time.Now(), nil)
	r.Rollback("assign")
	r.StreamOpened()
	r.HTTPRequest("GET", "/suggestions", 200, time.Millisecond)
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.HTTPRequest("POST", "/suggestions/{id}/accept", 0, 20*time.Millisecond)
	r.MonitorOutcome("timeout")

	path := filepath.Join(t.TempDir(), "textfile", "facereview.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`facereview_monitor_outcomes_total{outcome="timeout"} 1`,
		`facereview_http_request_duration_seconds_count{method="POST",route="/suggestions/{id}/accept",status="error"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("textfile missing %q:\n%s", want, text)
		}
	}
}
