package loader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"facereview/internal/faces"
	"facereview/internal/services"
	"facereview/internal/suggestion"
)

type gatedBackend struct {
	mu        sync.Mutex
	gates     map[string]chan struct{}
	data      map[string][]suggestion.Suggestion
	ignoreCtx bool
	started   chan string
	cancelled []string
	err       error
}

func (g *gatedBackend) FaceSuggestions(ctx context.Context, faceID, _ string) ([]suggestion.Suggestion, error) {
	if g.started != nil {
		g.started <- faceID
	}
	g.mu.Lock()
	gate := g.gates[faceID]
	g.mu.Unlock()
	if gate != nil {
		if g.ignoreCtx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				g.mu.Lock()
				g.cancelled = append(g.cancelled, faceID)
				g.mu.Unlock()
				return nil, ctx.Err()
			}
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.data[faceID], nil
}

func sample(id string, confidence float64) suggestion.Suggestion {
	return suggestion.Suggestion{ID: id, SuggestedPersonID: "p1", PersonName: "Mia", Confidence: confidence, Status: suggestion.StatusPending}
}

func TestLastRequestWins(t *testing.T) {
	for _, ignoreCtx := range []bool{false, true} {
		name := "cancellable"
		if ignoreCtx {
			name = "late response"
		}
		t.Run(name, func(t *testing.T) {
			api := &gatedBackend{
				gates:     map[string]chan struct{}{"f1": make(chan struct{})},
				data:      map[string][]suggestion.Suggestion{"f1": {sample("s1", 0.9)}, "f2": {sample("s2", 0.8)}},
				ignoreCtx: ignoreCtx,
				started:   make(chan string, 2),
			}
			store := suggestion.NewStore()
			l := New(api, store, faces.NewBoard(), 0, nil)

			first := make(chan Result, 1)
			go func() {
				res, _ := l.Load(context.Background(), "f1", "a1")
				first <- res
			}()
			<-api.started

			res, err := l.Load(context.Background(), "f2", "a2")
			if err != nil || !res.Applied {
				t.Fatalf("second load: %+v %v", res, err)
			}
			if ignoreCtx {
				close(api.gates["f1"])
			} else {
				defer close(api.gates["f1"])
			}

			select {
			case stale := <-first:
				if stale.Applied {
					t.Fatal("superseded load must not apply")
				}
			case <-time.After(5 * time.Second):
				t.Fatal("first load never returned")
			}
			if len(store.ListByFace("f1")) != 0 {
				t.Fatal("stale data reached the store")
			}
			state := l.State()
			if state.FaceID != "f2" || state.Loading || len(state.Suggestions) != 1 || state.Suggestions[0].ID != "s2" {
				t.Fatalf("unexpected state %+v", state)
			}
			if !ignoreCtx {
				api.mu.Lock()
				cancelled := append([]string(nil), api.cancelled...)
				api.mu.Unlock()
				if len(cancelled) != 1 || cancelled[0] != "f1" {
					t.Fatalf("expected superseded request cancelled, got %v", cancelled)
				}
			}
		})
	}
}

func TestLoadFiltersAndSorts(t *testing.T) {
	api := &gatedBackend{data: map[string][]suggestion.Suggestion{"f7": {
		sample("low", 0.2),
		sample("b", 0.8),
		sample("a", 0.8),
		sample("top", 0.95),
		{ID: "", Confidence: 0.99},
	}}}
	store := suggestion.NewStore()
	board := faces.NewBoard()
	l := New(api, store, board, 0.5, nil)

	res, err := l.Load(context.Background(), "f7", "a1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var ids []string
	for _, rec := range res.Suggestions {
		ids = append(ids, rec.ID)
		if rec.FaceInstanceID != "f7" {
			t.Fatalf("face id not stamped: %+v", rec)
		}
	}
	if len(ids) != 3 || ids[0] != "top" || ids[1] != "a" || ids[2] != "b" {
		t.Fatalf("order = %v", ids)
	}
	if face, ok := board.Face("f7"); !ok || face.AssetID != "a1" {
		t.Fatalf("face not tracked: %+v", face)
	}
	if name, ok := board.PersonName("p1"); !ok || name != "Mia" {
		t.Fatal("expected suggested person remembered")
	}
}

func TestLoadReplacesFaceRecords(t *testing.T) {
	api := &gatedBackend{data: map[string][]suggestion.Suggestion{"f7": {sample("new", 0.9)}}}
	store := suggestion.NewStore()
	old := sample("old", 0.9)
	old.FaceInstanceID = "f7"
	_ = store.Upsert(old)

	if _, err := New(api, store, nil, 0, nil).Load(context.Background(), "f7", ""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := store.Get("old"); ok {
		t.Fatal("expected previous records replaced")
	}
	if _, ok := store.Get("new"); !ok {
		t.Fatal("expected new record stored")
	}
}

func TestLoadErrorRecordedInState(t *testing.T) {
	api := &gatedBackend{err: services.Wrap(services.ErrNotFound, "backend", "face suggestions", "", nil)}
	l := New(api, suggestion.NewStore(), nil, 0, nil)

	_, err := l.Load(context.Background(), "f404", "")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if state := l.State(); !errors.Is(state.Err, services.ErrNotFound) || state.Loading {
		t.Fatalf("unexpected state %+v", state)
	}
	if _, err := l.Load(context.Background(), " ", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelDiscardsInFlightLoad(t *testing.T) {
	api := &gatedBackend{
		gates:   map[string]chan struct{}{"f1": make(chan struct{})},
		data:    map[string][]suggestion.Suggestion{"f1": {sample("s1", 0.9)}},
		started: make(chan string, 1),
	}
	store := suggestion.NewStore()
	l := New(api, store, nil, 0, nil)

	done := make(chan Result, 1)
	go func() {
		res, _ := l.Load(context.Background(), "f1", "")
		done <- res
	}()
	<-api.started
	l.Cancel()

	if res := <-done; res.Applied {
		t.Fatal("cancelled load must not apply")
	}
	if store.Snapshot().Len() != 0 {
		t.Fatal("cancelled load reached the store")
	}
}
