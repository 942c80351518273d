package assign

import (
	"context"
	"errors"
	"testing"
	"time"

	"facereview/internal/bulk"
	"facereview/internal/services"
	"facereview/internal/services/backend"
	"facereview/internal/suggestion"
)

type bulkBackend struct {
	resp backend.BulkActionResponse
}

func (b *bulkBackend) BulkAction(context.Context, backend.BulkActionRequest) (backend.BulkActionResponse, error) {
	return b.resp, nil
}

func acceptInBulk(t *testing.T, fx *fixture, ids ...string) {
	t.Helper()
	p := bulk.New(fx.store, fx.board, &bulkBackend{resp: backend.BulkActionResponse{SuccessCount: len(ids)}}, fx.recent, nil, nil, time.Second)
	res, err := p.Process(context.Background(), bulk.Request{IDs: ids, Action: backend.ActionAccept})
	if err != nil {
		t.Fatalf("bulk accept: %v", err)
	}
	if len(res.Succeeded) != len(ids) {
		t.Fatalf("bulk succeeded = %v", res.Succeeded)
	}
}

func TestFailedAssignKeepsBulkAcceptOnSameFace(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.seedMia(t)
	fx.api.gate = make(chan struct{})
	fx.api.entered = make(chan struct{})
	fx.api.assignErr = services.Wrap(services.ErrTransport, "backend", "assign face", "", errors.New("connection reset"))

	done := make(chan error, 1)
	go func() {
		_, err := fx.coord.AssignToExisting(context.Background(), "f7", "p9")
		done <- err
	}()
	<-fx.api.entered

	acceptInBulk(t, fx, "s42")
	close(fx.api.gate)
	if err := <-done; !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}

	rec, _ := fx.store.Get("s42")
	if rec.Status != suggestion.StatusAccepted {
		t.Fatalf("bulk acceptance lost: status %s", rec.Status)
	}
	face, _ := fx.board.Face("f7")
	if id, name := face.Person(); id != "p1" || name != "Mia" {
		t.Fatalf("bulk assignment lost: %+v", face)
	}
}

func TestFailedAcceptKeepsBulkAcceptOfSameSuggestion(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.seedMia(t)
	fx.api.acceptGate = make(chan struct{})
	fx.api.acceptEntered = make(chan struct{})
	fx.api.acceptErr = services.Wrap(services.ErrAlreadyReviewed, "backend", "accept suggestion", "", nil)

	done := make(chan error, 1)
	go func() {
		_, err := fx.coord.Accept(context.Background(), "s42")
		done <- err
	}()
	<-fx.api.acceptEntered

	acceptInBulk(t, fx, "s42")
	close(fx.api.acceptGate)
	if err := <-done; !errors.Is(err, services.ErrAlreadyReviewed) {
		t.Fatalf("expected already reviewed, got %v", err)
	}

	rec, _ := fx.store.Get("s42")
	if rec.Status != suggestion.StatusAccepted {
		t.Fatalf("bulk acceptance lost: status %s", rec.Status)
	}
	face, _ := fx.board.Face("f7")
	if id, _ := face.Person(); id != "p1" {
		t.Fatalf("bulk assignment lost: %+v", face)
	}
}
