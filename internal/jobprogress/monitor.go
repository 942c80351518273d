package jobprogress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"facereview/internal/logging"
	"facereview/internal/metrics"
	"facereview/internal/services"
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultTimeout         = 10 * time.Minute
	defaultMaxStreams      = 6
	defaultMaxPollFailures = 5
	defaultReconnectDelay  = time.Second
)

// ErrJobFailed marks a job that reported the failed phase or an error event.
var ErrJobFailed = errors.New("job failed")

var errSessionTimeout = errors.New("job progress session timed out")

// Source is the backend surface the monitor reads from.
type Source interface {
	OpenJobEvents(ctx context.Context, progressKey string) (io.ReadCloser, error)
	JobStatus(ctx context.Context, progressKey string) (Event, error)
}

// Handlers receive job updates. Any of them may be nil. They run on the
// monitor goroutine one at a time and may call Handle.Stop.
type Handlers struct {
	OnProgress func(Event)
	OnComplete func(Event)
	// OnError receives the terminal error and the last delivered progress, if any.
	OnError func(err error, last *Event)
}

// Options tunes a Monitor.
type Options struct {
	PollInterval    time.Duration
	Timeout         time.Duration
	MaxStreams      int
	MaxReconnects   int
	MaxPollFailures int
	ReconnectDelay  time.Duration
	DisableStream   bool
}

// Mode is the transport state of a monitoring session.
type Mode string

const (
	ModeIdle         Mode = "idle"
	ModeConnecting   Mode = "connecting"
	ModeStreaming    Mode = "streaming"
	ModeReconnecting Mode = "reconnecting"
	ModePolling      Mode = "polling"
	ModeTerminal     Mode = "terminal"
)

// Monitor starts job progress sessions. The open stream count is shared by
// every session started from the same Monitor.
type Monitor struct {
	source  Source
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Recorder

	openStreams atomic.Int32
}

// New constructs a monitor over source.
func New(source Source, opts Options, rec *metrics.Recorder, logger *slog.Logger) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxStreams <= 0 {
		opts.MaxStreams = defaultMaxStreams
	}
	if opts.MaxReconnects < 0 {
		opts.MaxReconnects = 0
	}
	if opts.MaxPollFailures <= 0 {
		opts.MaxPollFailures = defaultMaxPollFailures
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		source:  source,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "jobprogress"),
		metrics: rec,
	}
}

// OpenStreams reports how many event streams are currently open.
func (m *Monitor) OpenStreams() int {
	return int(m.openStreams.Load())
}

// Start begins observing the job identified by progressKey. Cancelling ctx
// ends the session without invoking any handler, the same as Stop.
func (m *Monitor) Start(ctx context.Context, progressKey string, handlers Handlers) (*Handle, error) {
	progressKey = strings.TrimSpace(progressKey)
	if progressKey == "" {
		return nil, services.Wrap(services.ErrValidation, "jobprogress", "start", "progress key is required", nil)
	}
	runCtx, cancel := context.WithCancel(ctx)
	runCtx, cancelTimeout := context.WithTimeoutCause(runCtx, m.opts.Timeout, errSessionTimeout)

	h := &Handle{
		key:      progressKey,
		handlers: handlers,
		cancel: func() {
			cancelTimeout()
			cancel()
		},
		done:   make(chan struct{}),
		mode:   ModeIdle,
		logger: m.logger.With(logging.String(logging.FieldProgressKey, progressKey)),
	}
	go m.run(runCtx, h)
	return h, nil
}

func (m *Monitor) run(ctx context.Context, h *Handle) {
	defer close(h.done)
	defer h.cancel()

	if !m.opts.DisableStream {
		if m.stream(ctx, h) {
			m.finish(ctx, h)
			return
		}
	}
	if ctx.Err() == nil {
		m.poll(ctx, h)
	}
	m.finish(ctx, h)
}

// finish reports a timeout if the session ended because of it.
func (m *Monitor) finish(ctx context.Context, h *Handle) {
	if h.isTerminal() {
		return
	}
	if errors.Is(context.Cause(ctx), errSessionTimeout) {
		err := services.Wrap(services.ErrTimeout, "jobprogress", "monitor",
			fmt.Sprintf("no terminal event within %s", m.opts.Timeout), nil)
		m.metrics.MonitorOutcome("timeout")
		h.terminate(err)
		return
	}
	m.metrics.MonitorOutcome("stopped")
	h.setMode(ModeTerminal)
}

func (m *Monitor) acquireStream() bool {
	for {
		n := m.openStreams.Load()
		if int(n) >= m.opts.MaxStreams {
			return false
		}
		if m.openStreams.CompareAndSwap(n, n+1) {
			m.metrics.StreamOpened()
			return true
		}
	}
}

func (m *Monitor) releaseStream() {
	m.openStreams.Add(-1)
	m.metrics.StreamClosed()
}

// stream runs the streaming transport. It returns true when the session is
// over (terminal event, stop or timeout) and false when the caller should
// fall back to polling.
func (m *Monitor) stream(ctx context.Context, h *Handle) bool {
	if !m.acquireStream() {
		h.logger.Debug("stream limit reached, polling instead", logging.Int("max_streams", m.opts.MaxStreams))
		return false
	}
	defer m.releaseStream()
	m.metrics.MonitorSession("streaming")

	reconnects := 0
	for {
		if reconnects == 0 {
			h.setMode(ModeConnecting)
		} else {
			h.setMode(ModeReconnecting)
		}
		body, err := m.source.OpenJobEvents(ctx, h.key)
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			h.logger.Info("progress stream unavailable, polling instead",
				logging.Int("reconnects", reconnects),
				logging.String("error_kind", services.Kind(err)),
				logging.Error(err))
			return false
		}

		h.setMode(ModeStreaming)
		over := m.consume(ctx, h, body)
		_ = body.Close()
		if over || ctx.Err() != nil {
			return true
		}

		reconnects++
		if reconnects > m.opts.MaxReconnects {
			logging.WarnWithContext(h.logger, "progress stream kept dropping, polling instead", "stream_reconnects_exhausted",
				logging.Int("reconnects", reconnects-1),
				logging.String(logging.FieldImpact, "progress updates arrive at the poll interval"))
			return false
		}
		select {
		case <-ctx.Done():
			return true
		case <-time.After(m.opts.ReconnectDelay):
		}
	}
}

// consume reads events until a terminal one, the end of the body or
// cancellation. It returns true if the session reached a terminal state.
func (m *Monitor) consume(ctx context.Context, h *Handle, body io.Reader) bool {
	reader := newSSEReader(body)
	for {
		raw, err := reader.Next()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				h.logger.Debug("progress stream read failed", logging.Error(err))
			}
			return h.isTerminal()
		}
		if raw.Name != "progress" && raw.Name != "complete" && raw.Name != "error" && raw.Name != "message" {
			continue
		}
		ev, err := DecodeEvent([]byte(raw.Data))
		if err != nil {
			if raw.Name == "progress" || raw.Name == "message" {
				logging.WarnWithContext(h.logger, "skipping malformed progress event", "progress_event_malformed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "one progress update was not shown"))
				continue
			}
			// Terminal events still end the job even if their payload is unreadable.
			ev = Event{}
		}
		switch raw.Name {
		case "complete":
			ev.Phase = PhaseCompleted
		case "error":
			ev.Phase = PhaseFailed
		}
		if m.deliver(h, ev) {
			return true
		}
	}
}

func (m *Monitor) poll(ctx context.Context, h *Handle) {
	h.setMode(ModePolling)
	m.metrics.MonitorSession("polling")

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		ev, err := m.source.JobStatus(ctx, h.key)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil && errors.Is(err, services.ErrNotFound):
			m.metrics.MonitorOutcome("not_found")
			h.terminate(services.Wrap(services.ErrNotFound, "jobprogress", "poll", "job record expired or unknown", err))
			return
		case err != nil:
			failures++
			h.logger.Debug("job status poll failed", logging.Int("consecutive_failures", failures), logging.Error(err))
			if failures > m.opts.MaxPollFailures {
				m.metrics.MonitorOutcome("error")
				h.terminate(fmt.Errorf("job status unavailable after %d attempts: %w", failures, err))
				return
			}
		default:
			failures = 0
			if m.deliver(h, ev) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// deliver routes an event to the matching handler. It returns true once the
// session is terminal.
func (m *Monitor) deliver(h *Handle, ev Event) bool {
	switch ev.Phase {
	case PhaseCompleted:
		if h.complete(ev) {
			m.metrics.MonitorOutcome("completed")
		}
		return true
	case PhaseFailed:
		msg := ev.Error
		if msg == "" {
			msg = ev.Message
		}
		if msg == "" {
			msg = "job reported failure"
		}
		if h.terminate(fmt.Errorf("%w: %s", ErrJobFailed, msg)) {
			m.metrics.MonitorOutcome("failed")
		}
		return true
	default:
		h.progress(ev)
		return h.isTerminal()
	}
}
