package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"facereview/internal/config"
	"facereview/internal/logging"
	"facereview/internal/metrics"
	"facereview/internal/services"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxResponseBytes      = 8 << 20
	maxErrorSnippet       = 200
	requestIDHeader       = "X-Request-ID"
)

// HTTPDoer describes the HTTP client used by the backend client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the review API.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    HTTPDoer
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records request durations on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = r
	}
}

// WithRequestTimeout bounds each non-streaming request whose context carries
// no deadline of its own.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New constructs a client for baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		timeout: defaultRequestTimeout,
		// No client-level timeout: event streams stay open for minutes.
		http:   &http.Client{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "backend")
	return c
}

// NewFromConfig builds a client from the [api] section.
func NewFromConfig(cfg *config.Config, opts ...Option) *Client {
	if cfg == nil {
		return New("", "", opts...)
	}
	base := []Option{WithRequestTimeout(cfg.RequestTimeout())}
	return New(cfg.API.BaseURL, cfg.API.Token, append(base, opts...)...)
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string { return c.baseURL }

// resource selects how a 409 is interpreted.
type resource int

const (
	resourceOther resource = iota
	resourceSuggestion
	resourcePerson
)

type call struct {
	operation string
	method    string
	route     string // low-cardinality label, e.g. /suggestions/{id}
	path      string
	query     url.Values
	body      any
	out       any
	resource  resource
}

// StatusError carries the raw HTTP failure behind a marker error.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: http %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func markerForStatus(status int, res resource) error {
	switch {
	case status == http.StatusNotFound:
		return services.ErrNotFound
	case status == http.StatusConflict:
		if res == resourceSuggestion {
			return services.ErrAlreadyReviewed
		}
		return services.ErrValidation
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return services.ErrValidation
	case status == http.StatusTooManyRequests:
		return services.ErrQuotaExceeded
	default:
		return services.ErrTransport
	}
}

func (c *Client) do(ctx context.Context, spec call) error {
	// A longer caller deadline, such as a monitor session, must not stretch
	// a single request.
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, requestID, err := c.send(ctx, spec, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.transportError(ctx, spec, "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return c.statusError(spec, resp.StatusCode, data, requestID)
	}
	if spec.out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, spec.out); err != nil {
		return services.Wrap(services.ErrTransport, "backend", spec.operation, "decode response", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, spec call, accept string) (*http.Response, string, error) {
	if c.baseURL == "" {
		return nil, "", services.Wrap(services.ErrValidation, "backend", spec.operation, "api base url not configured", nil)
	}
	target := c.baseURL + spec.path
	if len(spec.query) > 0 {
		target += "?" + spec.query.Encode()
	}

	var body io.Reader
	if spec.body != nil {
		payload, err := json.Marshal(spec.body)
		if err != nil {
			return nil, "", services.Wrap(services.ErrValidation, "backend", spec.operation, "encode request", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, target, body)
	if err != nil {
		return nil, "", services.Wrap(services.ErrValidation, "backend", spec.operation, "build request", err)
	}
	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", accept)
	if spec.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.HTTPRequest(spec.method, spec.route, 0, time.Since(started))
		return nil, requestID, c.transportError(ctx, spec, "request failed", err)
	}
	c.metrics.HTTPRequest(spec.method, spec.route, resp.StatusCode, time.Since(started))
	c.logger.Debug("backend request",
		logging.String("method", spec.method),
		logging.String("path", spec.path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldCorrelationID, requestID))
	return resp, requestID, nil
}

func (c *Client) transportError(ctx context.Context, spec call, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "backend", spec.operation, message, err)
	}
	return services.Wrap(services.ErrTransport, "backend", spec.operation, message, err)
}

func (c *Client) statusError(spec call, status int, data []byte, requestID string) error {
	statusErr := &StatusError{
		Method:     spec.method,
		Path:       spec.path,
		StatusCode: status,
		Message:    errorMessage(data),
	}
	marker := markerForStatus(status, spec.resource)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(c.logger, "backend request failed", "backend_http_error",
			logging.String("method", spec.method),
			logging.String("path", spec.path),
			logging.Int("status", status),
			logging.String(logging.FieldCorrelationID, requestID),
			logging.String(logging.FieldErrorHint, "check the review API service logs for this request id"),
			logging.String(logging.FieldImpact, "the operation was not applied"))
	}
	return services.Wrap(marker, "backend", spec.operation, "", statusErr)
}

func errorMessage(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ""
	}
	var body errorBody
	if err := json.Unmarshal(trimmed, &body); err == nil {
		if len(body.Detail) > 0 {
			var detail string
			if json.Unmarshal(body.Detail, &detail) == nil && detail != "" {
				return detail
			}
			return snippet(string(body.Detail))
		}
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return snippet(string(trimmed))
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrorSnippet {
		return s
	}
	return s[:maxErrorSnippet] + "..."
}

func escape(id string) string {
	return url.PathEscape(strings.TrimSpace(id))
}
