package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"facereview/internal/faces"
	"facereview/internal/logging"
	"facereview/internal/services"
	"facereview/internal/suggestion"
)

// Backend fetches the suggestions attached to a face.
type Backend interface {
	FaceSuggestions(ctx context.Context, faceID, assetID string) ([]suggestion.Suggestion, error)
}

// State is what a view shows for the currently selected face.
type State struct {
	FaceID      string
	Loading     bool
	Suggestions []suggestion.Suggestion
	Err         error
}

// Result is the outcome of one Load call. Applied is false when a newer load
// superseded this one; its data was then discarded.
type Result struct {
	FaceID      string
	Suggestions []suggestion.Suggestion
	Applied     bool
}

// Loader fetches suggestions per face. Only the most recent Load may change
// the store: every call takes a new generation and cancels the request of the
// one before it.
type Loader struct {
	api           Backend
	store         *suggestion.Store
	board         *faces.Board
	minConfidence float64
	logger        *slog.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	state      State
}

// New constructs a loader. board and logger may be nil.
func New(api Backend, store *suggestion.Store, board *faces.Board, minConfidence float64, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{
		api:           api,
		store:         store,
		board:         board,
		minConfidence: minConfidence,
		logger:        logging.NewComponentLogger(logger, "loader"),
	}
}

// State returns a copy of the current view state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.state
	out.Suggestions = cloneAll(l.state.Suggestions)
	return out
}

// Cancel abandons any load in flight.
func (l *Loader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.state.Loading = false
}

// Load fetches suggestions for faceID and, if no newer load started
// meanwhile, replaces that face's records in the store.
func (l *Loader) Load(ctx context.Context, faceID, assetID string) (Result, error) {
	faceID = strings.TrimSpace(faceID)
	if faceID == "" {
		return Result{}, services.Wrap(services.ErrValidation, "loader", "load", "face id is required", nil)
	}

	l.mu.Lock()
	l.generation++
	token := l.generation
	if l.cancel != nil {
		l.cancel()
	}
	reqCtx, cancel := context.WithCancel(services.WithFaceID(ctx, faceID))
	l.cancel = cancel
	l.state = State{FaceID: faceID, Loading: true}
	l.mu.Unlock()
	defer cancel()

	recs, err := l.api.FaceSuggestions(reqCtx, faceID, strings.TrimSpace(assetID))

	l.mu.Lock()
	defer l.mu.Unlock()
	if token != l.generation {
		l.logger.Debug("discarding superseded suggestion load",
			logging.String(logging.FieldFaceID, faceID),
			logging.Int64("generation", int64(token)))
		return Result{FaceID: faceID}, nil
	}
	l.cancel = nil
	if err != nil {
		l.state = State{FaceID: faceID, Err: err}
		return Result{FaceID: faceID}, fmt.Errorf("load suggestions for face %s: %w", faceID, err)
	}

	kept := make([]suggestion.Suggestion, 0, len(recs))
	for _, rec := range recs {
		if strings.TrimSpace(rec.ID) == "" || rec.Confidence < l.minConfidence {
			continue
		}
		if rec.Status == "" {
			rec.Status = suggestion.StatusPending
		}
		if !rec.Status.Valid() {
			continue
		}
		rec.FaceInstanceID = faceID
		kept = append(kept, rec)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		return kept[i].ID < kept[j].ID
	})

	l.store.ReplaceFace(faceID, kept)
	if l.board != nil {
		if _, tracked := l.board.Face(faceID); !tracked {
			l.board.Track(faces.Face{ID: faceID, AssetID: assetID})
		}
		for _, rec := range kept {
			if rec.PersonName != "" {
				if _, known := l.board.PersonName(rec.SuggestedPersonID); !known {
					l.board.RememberPerson(faces.Person{ID: rec.SuggestedPersonID, Name: rec.PersonName})
				}
			}
		}
	}
	l.state = State{FaceID: faceID, Suggestions: cloneAll(kept)}
	l.logger.Debug("suggestions loaded",
		logging.String(logging.FieldFaceID, faceID),
		logging.Int("count", len(kept)),
		logging.Int("dropped", len(recs)-len(kept)))
	return Result{FaceID: faceID, Suggestions: cloneAll(kept), Applied: true}, nil
}

func cloneAll(recs []suggestion.Suggestion) []suggestion.Suggestion {
	if recs == nil {
		return nil
	}
	out := make([]suggestion.Suggestion, len(recs))
	for i, rec := range recs {
		out[i] = rec.Clone()
	}
	return out
}
