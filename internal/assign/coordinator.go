package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"facereview/internal/faces"
	"facereview/internal/logging"
	"facereview/internal/metrics"
	"facereview/internal/services"
	"facereview/internal/services/backend"
	"facereview/internal/suggestion"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxNameLength  = 255
)

// Backend is the subset of the review API used for single-face operations.
type Backend interface {
	GetSuggestion(ctx context.Context, id string) (suggestion.Suggestion, error)
	AcceptSuggestion(ctx context.Context, id string) (suggestion.Suggestion, error)
	RejectSuggestion(ctx context.Context, id string) (suggestion.Suggestion, error)
	AssignFace(ctx context.Context, faceID, personID string) (backend.FaceAssignment, error)
	UnassignFace(ctx context.Context, faceID string) error
	CreatePerson(ctx context.Context, name string) (backend.Person, error)
	DeletePerson(ctx context.Context, personID string) error
}

// RecentRecorder receives person ids after successful assignments.
type RecentRecorder interface {
	Record(ctx context.Context, personID string)
}

// Options tunes coordinator behaviour.
type Options struct {
	RequestTimeout        time.Duration
	RollbackCreatedPerson bool
	MaxNameLength         int
}

// Coordinator applies review decisions optimistically and reverts local state
// when the backend refuses them. At most one operation per face is in flight;
// a second one fails immediately with services.ErrBusy.
type Coordinator struct {
	store   *suggestion.Store
	board   *faces.Board
	api     Backend
	recent  RecentRecorder
	metrics *metrics.Recorder
	logger  *slog.Logger
	opts    Options
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New constructs a coordinator. recent, rec and logger may be nil.
func New(store *suggestion.Store, board *faces.Board, api Backend, recent RecentRecorder, rec *metrics.Recorder, logger *slog.Logger, opts Options) *Coordinator {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.MaxNameLength <= 0 {
		opts.MaxNameLength = defaultMaxNameLength
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		store:    store,
		board:    board,
		api:      api,
		recent:   recent,
		metrics:  rec,
		logger:   logging.NewComponentLogger(logger, "assign"),
		opts:     opts,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// InFlight reports whether an operation on faceID is currently running.
func (c *Coordinator) InFlight(faceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.inflight[faceID]
	return busy
}

func (c *Coordinator) acquire(key, operation string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[key]; busy {
		return nil, services.Wrap(services.ErrBusy, "assign", operation, "face "+key+" has an operation in flight", nil)
	}
	c.inflight[key] = struct{}{}
	return func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}, nil
}

// detach returns a context that ignores caller cancellation so a mutation that
// reached the backend runs to completion, bounded by the request timeout.
func (c *Coordinator) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opts.RequestTimeout)
}

// AssignToExisting labels faceID with an existing person. The face's pending
// suggestions for that person leave the store; suggestions of other people
// stay pending.
func (c *Coordinator) AssignToExisting(ctx context.Context, faceID, personID string) (face faces.Face, err error) {
	started := time.Now()
	defer func() { c.metrics.Operation("assign", started, err) }()

	faceID, personID = strings.TrimSpace(faceID), strings.TrimSpace(personID)
	if faceID == "" || personID == "" {
		return faces.Face{}, services.Wrap(services.ErrValidation, "assign", "assign", "face id and person id are required", nil)
	}
	release, err := c.acquire(faceID, "assign")
	if err != nil {
		return faces.Face{}, err
	}
	defer release()

	return c.assignFace(ctx, faceID, personID, c.displayName(faceID, personID))
}

// CreateAndAssign creates a person named name and assigns faceID to it. The
// returned person is non-zero whenever the person exists on the backend after
// the call, including when the assignment failed and rollback is disabled.
func (c *Coordinator) CreateAndAssign(ctx context.Context, faceID, name string) (face faces.Face, person backend.Person, err error) {
	started := time.Now()
	defer func() { c.metrics.Operation("create_assign", started, err) }()

	faceID = strings.TrimSpace(faceID)
	name = strings.Join(strings.Fields(name), " ")
	switch {
	case faceID == "":
		return faces.Face{}, backend.Person{}, services.Wrap(services.ErrValidation, "assign", "create and assign", "face id is required", nil)
	case name == "":
		return faces.Face{}, backend.Person{}, services.Wrap(services.ErrValidation, "assign", "create and assign", "name is empty", nil)
	case utf8.RuneCountInString(name) > c.opts.MaxNameLength:
		return faces.Face{}, backend.Person{}, services.Wrap(services.ErrValidation, "assign", "create and assign",
			fmt.Sprintf("name exceeds %d characters", c.opts.MaxNameLength), nil)
	}

	release, err := c.acquire(faceID, "create and assign")
	if err != nil {
		return faces.Face{}, backend.Person{}, err
	}
	defer release()

	callCtx, cancel := c.detach(ctx)
	person, err = c.api.CreatePerson(callCtx, name)
	cancel()
	if err != nil {
		return faces.Face{}, backend.Person{}, fmt.Errorf("create person %q: %w", name, err)
	}
	c.board.RememberPerson(faces.Person{ID: person.ID, Name: person.Name})

	face, err = c.assignFace(ctx, faceID, person.ID, person.Name)
	if err == nil {
		return face, person, nil
	}
	if !c.opts.RollbackCreatedPerson {
		return faces.Face{}, person, err
	}

	delCtx, cancel := c.detach(ctx)
	defer cancel()
	if delErr := c.api.DeletePerson(delCtx, person.ID); delErr != nil {
		logging.WarnWithContext(c.logger, "created person left behind after failed assignment", "create_rollback_failed",
			logging.String(logging.FieldFaceID, faceID),
			logging.String(logging.FieldPersonID, person.ID),
			logging.Error(delErr),
			logging.String(logging.FieldErrorHint, "delete the person manually or retry the assignment"),
			logging.String(logging.FieldImpact, "an unused person record remains"))
		return faces.Face{}, person, errors.Join(err, fmt.Errorf("delete created person %s: %w", person.ID, delErr))
	}
	c.board.ForgetPerson(person.ID)
	return faces.Face{}, backend.Person{}, err
}

func (c *Coordinator) assignFace(ctx context.Context, faceID, personID, personName string) (faces.Face, error) {
	logger := c.logger.With(logging.Args(
		logging.String(logging.FieldFaceID, faceID),
		logging.String(logging.FieldPersonID, personID),
	)...)

	var cleared []suggestion.Suggestion
	saved, _ := c.store.Apply(func(tx *suggestion.Tx) error {
		cleared = tx.RemovePending(faceID, personID)
		return nil
	})
	change := c.board.Assign(faceID, personID, personName)

	callCtx, cancel := c.detach(services.WithFaceID(ctx, faceID))
	defer cancel()
	out, err := c.api.AssignFace(callCtx, faceID, personID)
	if err != nil {
		c.revert(logger, saved, &change)
		c.rolledBack(logger, "assign", err)
		return faces.Face{}, fmt.Errorf("assign face %s to %s: %w", faceID, personID, err)
	}

	if out.PersonName != nil && *out.PersonName != "" && *out.PersonName != personName {
		personName = *out.PersonName
		c.board.Assign(faceID, personID, personName)
	}
	if personName != "" {
		c.board.RememberPerson(faces.Person{ID: personID, Name: personName})
	}
	c.record(ctx, personID)
	logger.Info("face assigned", logging.Int("suggestions_cleared", len(cleared)))

	face, _ := c.board.Face(faceID)
	return face, nil
}

// Accept confirms a suggestion: the face is assigned to the suggested person
// and the suggestion leaves the pending set. Other pending suggestions of the
// same person for the face are removed as AssignToExisting does.
func (c *Coordinator) Accept(ctx context.Context, suggestionID string) (rec suggestion.Suggestion, err error) {
	started := time.Now()
	defer func() { c.metrics.Operation("accept", started, err) }()
	return c.review(ctx, suggestionID, suggestion.StatusAccepted)
}

// Reject dismisses a suggestion without touching the face.
func (c *Coordinator) Reject(ctx context.Context, suggestionID string) (rec suggestion.Suggestion, err error) {
	started := time.Now()
	defer func() { c.metrics.Operation("reject", started, err) }()
	return c.review(ctx, suggestionID, suggestion.StatusRejected)
}

func (c *Coordinator) review(ctx context.Context, suggestionID string, target suggestion.Status) (suggestion.Suggestion, error) {
	op := "accept"
	if target == suggestion.StatusRejected {
		op = "reject"
	}
	suggestionID = strings.TrimSpace(suggestionID)
	if suggestionID == "" {
		return suggestion.Suggestion{}, services.Wrap(services.ErrValidation, "assign", op, "suggestion id is required", nil)
	}

	rec, fetched, err := c.resolve(ctx, suggestionID, op)
	if err != nil {
		return suggestion.Suggestion{}, err
	}
	if !rec.Pending() {
		return rec, alreadyReviewed(op, rec)
	}

	key := rec.FaceInstanceID
	if key == "" {
		key = "suggestion/" + rec.ID
	}
	release, err := c.acquire(key, op)
	if err != nil {
		return suggestion.Suggestion{}, err
	}
	defer release()

	logger := c.logger.With(logging.Args(
		logging.String(logging.FieldSuggestionID, rec.ID),
		logging.String(logging.FieldFaceID, rec.FaceInstanceID),
	)...)

	assignFace := target == suggestion.StatusAccepted && rec.FaceInstanceID != ""
	reviewedAt := c.now()
	// A record fetched from the backend enters the store in the same write as
	// its transition, so a rollback removes it again.
	saved, err := c.store.Apply(func(tx *suggestion.Tx) error {
		if _, ok := tx.Get(rec.ID); !ok && fetched {
			if err := tx.Put(rec); err != nil {
				return services.Wrap(services.ErrTransport, "assign", op, "unusable suggestion from backend", err)
			}
		}
		if _, err := tx.Transition(rec.ID, target, reviewedAt); err != nil {
			return err
		}
		if assignFace {
			tx.RemovePending(rec.FaceInstanceID, rec.SuggestedPersonID)
		}
		return nil
	})
	switch {
	case errors.Is(err, suggestion.ErrNotPending):
		current, _ := c.store.Get(rec.ID)
		return current, alreadyReviewed(op, current)
	case errors.Is(err, suggestion.ErrUnknown):
		return suggestion.Suggestion{}, services.Wrap(services.ErrNotFound, "assign", op, "", err)
	case err != nil:
		return suggestion.Suggestion{}, err
	}

	var change *faces.Change
	if assignFace {
		ch := c.board.Assign(rec.FaceInstanceID, rec.SuggestedPersonID, c.suggestionName(rec))
		change = &ch
	}

	callCtx, cancel := c.detach(services.WithSuggestionID(ctx, rec.ID))
	defer cancel()
	call := c.api.AcceptSuggestion
	if target == suggestion.StatusRejected {
		call = c.api.RejectSuggestion
	}
	server, err := call(callCtx, rec.ID)
	if err != nil {
		c.revert(logger, saved, change)
		c.rolledBack(logger, op, err)
		return suggestion.Suggestion{}, fmt.Errorf("%s suggestion %s: %w", op, rec.ID, err)
	}

	if server.ID == rec.ID && server.Status == target {
		// Server copy carries the authoritative reviewedAt.
		_ = c.store.Upsert(server)
	}
	if target == suggestion.StatusAccepted {
		c.record(ctx, rec.SuggestedPersonID)
	}
	logger.Info("suggestion reviewed", logging.String("status", string(target)))

	out, _ := c.store.Get(rec.ID)
	return out, nil
}

// Unassign clears the person of faceID.
func (c *Coordinator) Unassign(ctx context.Context, faceID string) (err error) {
	started := time.Now()
	defer func() { c.metrics.Operation("unassign", started, err) }()

	faceID = strings.TrimSpace(faceID)
	if faceID == "" {
		return services.Wrap(services.ErrValidation, "assign", "unassign", "face id is required", nil)
	}
	release, err := c.acquire(faceID, "unassign")
	if err != nil {
		return err
	}
	defer release()

	change := c.board.Unassign(faceID)
	callCtx, cancel := c.detach(services.WithFaceID(ctx, faceID))
	defer cancel()
	if err := c.api.UnassignFace(callCtx, faceID); err != nil {
		logger := c.logger.With(logging.String(logging.FieldFaceID, faceID))
		c.revert(logger, nil, &change)
		c.rolledBack(logger, "unassign", err)
		return fmt.Errorf("unassign face %s: %w", faceID, err)
	}
	c.logger.Info("face unassigned", logging.String(logging.FieldFaceID, faceID))
	return nil
}

// resolve finds a suggestion locally, falling back to the backend. A fetched
// record is not stored here; fetched reports that the caller must insert it.
func (c *Coordinator) resolve(ctx context.Context, id, op string) (rec suggestion.Suggestion, fetched bool, err error) {
	if rec, ok := c.store.Get(id); ok {
		return rec, false, nil
	}
	callCtx, cancel := c.detach(ctx)
	defer cancel()
	rec, err = c.api.GetSuggestion(callCtx, id)
	if err != nil {
		return suggestion.Suggestion{}, false, fmt.Errorf("%s suggestion %s: %w", op, id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.Status == "" {
		rec.Status = suggestion.StatusPending
	}
	return rec, true, nil
}

// revert undoes an optimistic change after the backend refused it. Records
// and faces written by another operation since then hold newer confirmed
// state and are kept. The face is also kept when one of the kept records is
// now accepted, since that acceptance assigned it.
func (c *Coordinator) revert(logger *slog.Logger, saved suggestion.Saved, change *faces.Change) {
	skipped := c.store.Revert(saved)
	keepFace := false
	for _, id := range skipped {
		if rec, ok := c.store.Get(id); ok && rec.Status == suggestion.StatusAccepted {
			keepFace = true
		}
	}
	faceKept := false
	if change != nil {
		faceKept = keepFace || !c.board.Revert(*change)
	}
	if len(skipped) > 0 || faceKept {
		logger.Info("rollback kept newer state",
			logging.Strings("kept_suggestions", skipped),
			logging.Bool("face_kept", faceKept))
	}
}

func (c *Coordinator) displayName(faceID, personID string) string {
	if name, ok := c.board.PersonName(personID); ok {
		return name
	}
	for _, rec := range c.store.PendingByFace(faceID) {
		if rec.SuggestedPersonID == personID && rec.PersonName != "" {
			return rec.PersonName
		}
	}
	return ""
}

func (c *Coordinator) suggestionName(rec suggestion.Suggestion) string {
	if rec.PersonName != "" {
		return rec.PersonName
	}
	name, _ := c.board.PersonName(rec.SuggestedPersonID)
	return name
}

func (c *Coordinator) record(ctx context.Context, personID string) {
	if c.recent != nil && personID != "" {
		c.recent.Record(ctx, personID)
	}
}

func (c *Coordinator) rolledBack(logger *slog.Logger, op string, err error) {
	c.metrics.Rollback(op)
	logging.WarnWithContext(logger, "backend refused change, local state restored", op+"_rollback",
		logging.String(logging.FieldOperation, op),
		logging.String("error_kind", services.Kind(err)),
		logging.Error(err),
		logging.String(logging.FieldImpact, "the view shows the state from before the action"))
}

func alreadyReviewed(op string, rec suggestion.Suggestion) error {
	return services.Wrap(services.ErrAlreadyReviewed, "assign", op,
		fmt.Sprintf("suggestion %s is %s", rec.ID, rec.Status), nil)
}
