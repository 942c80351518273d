package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"facereview/internal/faces"
	"facereview/internal/logging"
	"facereview/internal/metrics"
	"facereview/internal/services"
	"facereview/internal/services/backend"
	"facereview/internal/suggestion"
)

const defaultRequestTimeout = 30 * time.Second

// Backend issues the single bulk request.
type Backend interface {
	BulkAction(ctx context.Context, req backend.BulkActionRequest) (backend.BulkActionResponse, error)
}

// RecentRecorder receives person ids of accepted suggestions.
type RecentRecorder interface {
	Record(ctx context.Context, personID string)
}

// Request describes one bulk review.
type Request struct {
	IDs                    []string
	Action                 backend.Action
	AutoFindMore           bool
	FindMorePrototypeCount int
}

// Result is the per-id breakdown of a bulk review.
type Result struct {
	Action    backend.Action          `json:"action"`
	Requested []string                `json:"requested"`
	Succeeded []string                `json:"succeeded"`
	Failed    []backend.BulkItemError `json:"failed"`
	// Jobs lists find-more jobs started by the backend, one per distinct
	// suggested person as the backend reports them.
	Jobs []backend.Job `json:"jobs,omitempty"`
}

// FailedIDs returns the ids reported as failed, in report order.
func (r Result) FailedIDs() []string {
	out := make([]string, 0, len(r.Failed))
	for _, item := range r.Failed {
		out = append(out, item.SuggestionID)
	}
	return out
}

// Processor applies accept/reject to many suggestions in one round trip.
type Processor struct {
	store   *suggestion.Store
	board   *faces.Board
	api     Backend
	recent  RecentRecorder
	metrics *metrics.Recorder
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// New constructs a processor. board, recent, rec and logger may be nil.
func New(store *suggestion.Store, board *faces.Board, api Backend, recent RecentRecorder, rec *metrics.Recorder, logger *slog.Logger, timeout time.Duration) *Processor {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		store:   store,
		board:   board,
		api:     api,
		recent:  recent,
		metrics: rec,
		logger:  logging.NewComponentLogger(logger, "bulk"),
		timeout: timeout,
		now:     time.Now,
	}
}

// Process validates req, sends it, and applies the outcome to the store. When
// the request as a whole fails nothing local changes.
func (p *Processor) Process(ctx context.Context, req Request) (res Result, err error) {
	started := time.Now()
	defer func() { p.metrics.Operation("bulk_"+string(req.Action), started, err) }()

	ids, err := normalize(req)
	if err != nil {
		return Result{}, err
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	resp, err := p.api.BulkAction(callCtx, backend.BulkActionRequest{
		SuggestionIDs:          ids,
		Action:                 req.Action,
		AutoFindMore:           req.AutoFindMore,
		FindMorePrototypeCount: req.FindMorePrototypeCount,
	})
	if err != nil {
		return Result{}, fmt.Errorf("bulk %s of %d suggestions: %w", req.Action, len(ids), err)
	}

	res = Result{Action: req.Action, Requested: ids, Failed: resp.Errors, Jobs: resp.FindMoreJobs}
	failed := make(map[string]struct{}, len(resp.Errors))
	for _, item := range resp.Errors {
		failed[item.SuggestionID] = struct{}{}
	}

	target := suggestion.StatusAccepted
	if req.Action == backend.ActionReject {
		target = suggestion.StatusRejected
	}
	reviewedAt := p.now()
	recorded := make(map[string]struct{})
	for _, id := range ids {
		if _, bad := failed[id]; bad {
			continue
		}
		res.Succeeded = append(res.Succeeded, id)

		// The backend already committed this id, so the local record follows
		// it even when an optimistic change to the same record is in flight.
		prev, known, cerr := p.store.Confirm(id, target, reviewedAt)
		if cerr != nil || !known {
			p.logger.Debug("bulk result not applied locally",
				logging.String(logging.FieldSuggestionID, id),
				logging.Bool("known", known),
				logging.Error(cerr))
			continue
		}
		if target != suggestion.StatusAccepted {
			continue
		}
		if p.board != nil && prev.FaceInstanceID != "" {
			p.board.Assign(prev.FaceInstanceID, prev.SuggestedPersonID, p.personName(prev))
		}
		if _, seen := recorded[prev.SuggestedPersonID]; !seen && prev.SuggestedPersonID != "" {
			recorded[prev.SuggestedPersonID] = struct{}{}
			if p.recent != nil {
				p.recent.Record(ctx, prev.SuggestedPersonID)
			}
		}
	}

	p.metrics.BulkItems(string(req.Action), "succeeded", len(res.Succeeded))
	p.metrics.BulkItems(string(req.Action), "failed", len(res.Failed))
	if len(res.Failed) > 0 {
		logging.WarnWithContext(p.logger, "bulk action partially failed", "bulk_partial_failure",
			logging.String("action", string(req.Action)),
			logging.Int("succeeded", len(res.Succeeded)),
			logging.Int("failed", len(res.Failed)),
			logging.Strings("failed_ids", res.FailedIDs()),
			logging.String(logging.FieldImpact, "failed suggestions remain in their previous state"))
	} else {
		p.logger.Info("bulk action applied",
			logging.String("action", string(req.Action)),
			logging.Int("succeeded", len(res.Succeeded)),
			logging.Int("jobs", len(res.Jobs)))
	}
	return res, nil
}

func (p *Processor) personName(rec suggestion.Suggestion) string {
	if rec.PersonName != "" {
		return rec.PersonName
	}
	if p.board != nil {
		if name, ok := p.board.PersonName(rec.SuggestedPersonID); ok {
			return name
		}
	}
	return ""
}

func normalize(req Request) ([]string, error) {
	if !req.Action.Valid() {
		return nil, services.Wrap(services.ErrValidation, "bulk", "process", fmt.Sprintf("unknown action %q", req.Action), nil)
	}
	if len(req.IDs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "bulk", "process", "no suggestion ids", nil)
	}
	seen := make(map[string]struct{}, len(req.IDs))
	ids := make([]string, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, services.Wrap(services.ErrValidation, "bulk", "process", "blank suggestion id", nil)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
