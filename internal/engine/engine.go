package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"facereview/internal/assign"
	"facereview/internal/bulk"
	"facereview/internal/config"
	"facereview/internal/faces"
	"facereview/internal/jobprogress"
	"facereview/internal/kvstore"
	"facereview/internal/loader"
	"facereview/internal/logging"
	"facereview/internal/metrics"
	"facereview/internal/recent"
	"facereview/internal/services"
	"facereview/internal/services/backend"
	"facereview/internal/suggestion"
)

// Engine is the composition root shared by every CLI command.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Recorder
	state   kvstore.Store

	API     *backend.Client
	Store   *suggestion.Store
	Board   *faces.Board
	Recent  *recent.Cache
	Assign  *assign.Coordinator
	Bulk    *bulk.Processor
	Monitor *jobprogress.Monitor
	Loader  *loader.Loader

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	backendOpts []backend.Option
	monitorOpts []func(*jobprogress.Options)
	metrics     *metrics.Recorder
}

// Option customizes engine construction.
type Option func(*options)

// WithBackendOptions forwards options to the backend client.
func WithBackendOptions(opts ...backend.Option) Option {
	return func(o *options) {
		o.backendOpts = append(o.backendOpts, opts...)
	}
}

// WithMonitorOptions adjusts the job monitor settings derived from config.
func WithMonitorOptions(fn func(*jobprogress.Options)) Option {
	return func(o *options) {
		if fn != nil {
			o.monitorOpts = append(o.monitorOpts, fn)
		}
	}
}

// WithMetrics replaces the engine's private metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// New builds an engine from cfg. The caller must Close it.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	rec := o.metrics
	if rec == nil {
		rec = metrics.New()
	}

	state, err := kvstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	api := backend.NewFromConfig(cfg, append([]backend.Option{
		backend.WithLogger(logger),
		backend.WithMetrics(rec),
	}, o.backendOpts...)...)

	store := suggestion.NewStore()
	board := faces.NewBoard()
	cache := recent.New(state, cfg.Recent.Capacity, logger)

	monitorOpts := jobprogress.Options{
		PollInterval:    cfg.PollInterval(),
		Timeout:         cfg.MonitorTimeout(),
		MaxStreams:      cfg.Monitor.MaxStreams,
		MaxReconnects:   cfg.Monitor.MaxReconnects,
		MaxPollFailures: cfg.Monitor.MaxPollFailures,
		DisableStream:   cfg.Monitor.DisableStream || cfg.Monitor.MaxStreams == 0,
	}
	for _, fn := range o.monitorOpts {
		fn(&monitorOpts)
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "engine"),
		metrics: rec,
		state:   state,
		API:     api,
		Store:   store,
		Board:   board,
		Recent:  cache,
		Assign: assign.New(store, board, api, cache, rec, logger, assign.Options{
			RequestTimeout:        cfg.RequestTimeout(),
			RollbackCreatedPerson: cfg.Assign.RollbackCreatedPerson,
			MaxNameLength:         cfg.Assign.MaxNameLength,
		}),
		Bulk:    bulk.New(store, board, api, cache, rec, logger, cfg.RequestTimeout()),
		Monitor: jobprogress.New(api, monitorOpts, rec, logger),
		Loader:  loader.New(api, store, board, cfg.Loader.MinConfidence, logger),
	}
	return e, nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// State returns the key/value backend holding persisted session state.
func (e *Engine) State() kvstore.Store { return e.state }

// Metrics returns the engine's recorder.
func (e *Engine) Metrics() *metrics.Recorder { return e.metrics }

// ListSuggestions fetches one page and merges it into the local store.
func (e *Engine) ListSuggestions(ctx context.Context, q backend.ListQuery) (page backend.SuggestionPage, err error) {
	started := time.Now()
	defer func() { e.metrics.Operation("list_suggestions", started, err) }()

	page, err = e.API.ListSuggestions(ctx, q)
	if err != nil {
		return backend.SuggestionPage{}, err
	}
	for _, rec := range page.Items {
		e.remember(rec)
	}
	return page, nil
}

// Suggestion returns a suggestion from the local store, fetching it when it
// is not cached.
func (e *Engine) Suggestion(ctx context.Context, id string) (suggestion.Suggestion, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return suggestion.Suggestion{}, services.Wrap(services.ErrValidation, "engine", "get suggestion", "suggestion id is required", nil)
	}
	if rec, ok := e.Store.Get(id); ok {
		return rec, nil
	}
	rec, err := e.API.GetSuggestion(ctx, id)
	if err != nil {
		return suggestion.Suggestion{}, err
	}
	e.remember(rec)
	return rec, nil
}

func (e *Engine) remember(rec suggestion.Suggestion) {
	if err := e.Store.Upsert(rec); err != nil {
		e.logger.Debug("skipping suggestion",
			logging.String(logging.FieldSuggestionID, rec.ID),
			logging.Error(err),
		)
		return
	}
	if rec.SuggestedPersonID != "" && rec.PersonName != "" {
		e.Board.RememberPerson(faces.Person{ID: rec.SuggestedPersonID, Name: rec.PersonName})
	}
}

// FindMore starts a background search for more faces of personID. Zero
// fields in req take the [find_more] defaults.
func (e *Engine) FindMore(ctx context.Context, personID string, req backend.FindMoreRequest) (job backend.Job, err error) {
	started := time.Now()
	defer func() { e.metrics.Operation("find_more", started, err) }()

	personID = strings.TrimSpace(personID)
	if personID == "" {
		return backend.Job{}, services.Wrap(services.ErrValidation, "engine", "find more", "person id is required", nil)
	}
	if req.PrototypeCount <= 0 {
		req.PrototypeCount = e.cfg.FindMore.PrototypeCount
	}
	if req.MaxSuggestions <= 0 {
		req.MaxSuggestions = e.cfg.FindMore.MaxSuggestions
	}
	if req.MinConfidence <= 0 {
		req.MinConfidence = e.cfg.FindMore.MinConfidence
	}
	if req.MinConfidence > 1 {
		return backend.Job{}, services.Wrap(services.ErrValidation, "engine", "find more", "min confidence must be between 0 and 1", nil)
	}

	job, err = e.API.FindMore(ctx, personID, req)
	if err != nil {
		return backend.Job{}, err
	}
	e.logger.Info("find-more job started",
		logging.String(logging.FieldPersonID, personID),
		logging.String(logging.FieldProgressKey, job.ProgressKey),
		logging.Int("prototype_count", req.PrototypeCount),
	)
	return job, nil
}

// WatchJob starts observing a job's progress.
func (e *Engine) WatchJob(ctx context.Context, progressKey string, handlers jobprogress.Handlers) (*jobprogress.Handle, error) {
	return e.Monitor.Start(ctx, progressKey, handlers)
}

// BulkReview applies req through the bulk processor. A zero prototype count
// takes the [bulk] default.
func (e *Engine) BulkReview(ctx context.Context, req bulk.Request) (bulk.Result, error) {
	if req.FindMorePrototypeCount <= 0 {
		req.FindMorePrototypeCount = e.cfg.Bulk.FindMorePrototypeCount
	}
	return e.Bulk.Process(ctx, req)
}

// Close flushes metrics and releases the state backend. It is idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		var errs []error
		if path := e.cfg.Metrics.TextfilePath; path != "" {
			if err := e.metrics.WriteTextfile(path); err != nil {
				logging.WarnWithContext(e.logger, "metrics textfile not written", "metrics_export",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldImpact, "node exporter will serve stale engine metrics"),
				)
				errs = append(errs, err)
			}
		}
		if e.state != nil {
			if err := e.state.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close state: %w", err))
			}
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}
