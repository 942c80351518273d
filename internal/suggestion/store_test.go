package suggestion_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"facereview/internal/suggestion"
)

func sample(id, face, person string, confidence float64) suggestion.Suggestion {
	return suggestion.Suggestion{
		ID:                id,
		FaceInstanceID:    face,
		SuggestedPersonID: person,
		Confidence:        confidence,
		Status:            suggestion.StatusPending,
		CreatedAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		BBox:              &suggestion.BBox{X: 1, Y: 2, W: 30, H: 40},
	}
}

func TestUpsertGetRemove(t *testing.T) {
	store := suggestion.NewStore()
	if err := store.Upsert(sample("s1", "f1", "p1", 0.8)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, ok := store.Get("s1")
	if !ok || got.SuggestedPersonID != "p1" {
		t.Fatalf("unexpected record: %+v ok=%v", got, ok)
	}

	got.BBox.X = 99
	again, _ := store.Get("s1")
	if again.BBox.X != 1 {
		t.Fatal("Get must return an independent copy")
	}

	store.Remove("s1")
	if _, ok := store.Get("s1"); ok {
		t.Fatal("expected record removed")
	}

	before := store.Snapshot().Version()
	store.Remove("does-not-exist")
	if store.Snapshot().Version() != before {
		t.Fatal("removing an absent id must not publish a new snapshot")
	}
}

func TestUpsertValidates(t *testing.T) {
	store := suggestion.NewStore()
	if err := store.Upsert(suggestion.Suggestion{ID: "  "}); err == nil {
		t.Fatal("expected error for empty id")
	}
	bad := sample("s1", "f1", "p1", 0.5)
	bad.Status = "maybe"
	if err := store.Upsert(bad); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestListByFaceOrdersByConfidence(t *testing.T) {
	store := suggestion.NewStore()
	for _, rec := range []suggestion.Suggestion{
		sample("a", "f1", "p1", 0.5),
		sample("b", "f1", "p2", 0.9),
		sample("c", "f2", "p1", 0.7),
	} {
		if err := store.Upsert(rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	list := store.ListByFace("f1")
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "a" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if len(store.PendingByPerson("p1")) != 2 {
		t.Fatal("expected two pending suggestions for p1")
	}
}

func TestTransitionLeavesPendingSetAndRefusesTerminal(t *testing.T) {
	store := suggestion.NewStore()
	_ = store.Upsert(sample("s1", "f1", "p1", 0.8))

	now := time.Now()
	prev, err := store.Transition("s1", suggestion.StatusAccepted, now)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if prev.Status != suggestion.StatusPending {
		t.Fatalf("expected previous record pending, got %s", prev.Status)
	}
	rec, _ := store.Get("s1")
	if rec.Status != suggestion.StatusAccepted || rec.ReviewedAt == nil {
		t.Fatalf("unexpected record after transition: %+v", rec)
	}
	if len(store.PendingByFace("f1")) != 0 {
		t.Fatal("accepted record must leave the pending set")
	}

	snap := store.Snapshot().Records()
	if _, err := store.Transition("s1", suggestion.StatusRejected, now); !errors.Is(err, suggestion.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	if !reflect.DeepEqual(snap, store.Snapshot().Records()) {
		t.Fatal("refused transition must not mutate the store")
	}
	if _, err := store.Transition("missing", suggestion.StatusRejected, now); !errors.Is(err, suggestion.ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
	if _, err := store.Transition("s1", suggestion.StatusPending, now); err == nil {
		t.Fatal("expected error for non-terminal target")
	}
}

func TestCaptureRestoreIsExact(t *testing.T) {
	store := suggestion.NewStore()
	_ = store.Upsert(sample("s1", "f1", "p1", 0.8))
	_ = store.Upsert(sample("s2", "f1", "p2", 0.6))
	before := store.Snapshot().Records()

	saved := store.Capture("s1", "s2", "s3")
	if _, err := store.Transition("s1", suggestion.StatusRejected, time.Now()); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	store.RemovePendingByFace("f1")
	_ = store.Upsert(sample("s3", "f9", "p9", 0.1))

	store.Restore(saved)
	if !reflect.DeepEqual(before, store.Snapshot().Records()) {
		t.Fatalf("restore mismatch:\nwant %+v\ngot  %+v", before, store.Snapshot().Records())
	}
}

func TestRevertSkipsRecordsWrittenSince(t *testing.T) {
	store := suggestion.NewStore()
	_ = store.Upsert(sample("s1", "f1", "p1", 0.8))
	_ = store.Upsert(sample("s2", "f1", "p2", 0.6))
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	saved, err := store.Apply(func(tx *suggestion.Tx) error {
		if _, err := tx.Transition("s1", suggestion.StatusAccepted, now); err != nil {
			return err
		}
		return tx.Put(sample("s3", "f2", "p3", 0.5))
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !reflect.DeepEqual(saved.IDs(), []string{"s1", "s3"}) {
		t.Fatalf("saved ids = %v", saved.IDs())
	}
	if _, _, err := store.Confirm("s1", suggestion.StatusAccepted, now.Add(time.Minute)); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	skipped := store.Revert(saved)
	if !reflect.DeepEqual(skipped, []string{"s1"}) {
		t.Fatalf("skipped = %v", skipped)
	}
	if rec, _ := store.Get("s1"); rec.Status != suggestion.StatusAccepted {
		t.Fatalf("confirmed record reverted: %+v", rec)
	}
	if _, ok := store.Get("s3"); ok {
		t.Fatal("record inserted by the reverted write must be removed")
	}
}

func TestApplyErrorPublishesNothing(t *testing.T) {
	store := suggestion.NewStore()
	_ = store.Upsert(sample("s1", "f1", "p1", 0.8))
	before := store.Snapshot()

	_, err := store.Apply(func(tx *suggestion.Tx) error {
		if err := tx.Put(sample("s2", "f1", "p2", 0.5)); err != nil {
			return err
		}
		_, err := tx.Transition("missing", suggestion.StatusRejected, time.Now())
		return err
	})
	if !errors.Is(err, suggestion.ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
	if store.Snapshot() != before {
		t.Fatal("failed write must not publish")
	}
}

func TestConfirmOverridesTerminalAndMarksUnknown(t *testing.T) {
	store := suggestion.NewStore()
	_ = store.Upsert(sample("s1", "f1", "p1", 0.8))
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if _, err := store.Transition("s1", suggestion.StatusRejected, now); err != nil {
		t.Fatal(err)
	}

	prev, known, err := store.Confirm("s1", suggestion.StatusAccepted, now)
	if err != nil || !known || prev.Status != suggestion.StatusRejected {
		t.Fatalf("Confirm = %+v %v %v", prev, known, err)
	}
	if rec, _ := store.Get("s1"); rec.Status != suggestion.StatusAccepted {
		t.Fatalf("status = %s", rec.Status)
	}

	saved := store.Capture("gone")
	if _, known, _ := store.Confirm("gone", suggestion.StatusAccepted, now); known {
		t.Fatal("expected unknown id")
	}
	if skipped := store.Revert(saved); !reflect.DeepEqual(skipped, []string{"gone"}) {
		t.Fatalf("confirmed unknown id must be left alone, skipped = %v", skipped)
	}
}

func TestReplaceFaceSwapsRecords(t *testing.T) {
	store := suggestion.NewStore()
	_ = store.Upsert(sample("old", "f1", "p1", 0.8))
	_ = store.Upsert(sample("other", "f2", "p1", 0.8))

	store.ReplaceFace("f1", []suggestion.Suggestion{sample("new", "", "p3", 0.4), {ID: ""}})
	if _, ok := store.Get("old"); ok {
		t.Fatal("expected old record replaced")
	}
	rec, ok := store.Get("new")
	if !ok || rec.FaceInstanceID != "f1" {
		t.Fatalf("expected new record bound to f1, got %+v", rec)
	}
	if _, ok := store.Get("other"); !ok {
		t.Fatal("records of other faces must be untouched")
	}
}

func TestSnapshotsAreImmutable(t *testing.T) {
	store := suggestion.NewStore()
	_ = store.Upsert(sample("s1", "f1", "p1", 0.8))
	snap := store.Snapshot()
	store.Remove("s1")
	if _, ok := snap.Get("s1"); !ok {
		t.Fatal("published snapshot must not observe later writes")
	}
	if store.Snapshot().Version() != snap.Version()+1 {
		t.Fatalf("expected version bump, got %d -> %d", snap.Version(), store.Snapshot().Version())
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := suggestion.ParseStatus(" Accepted "); !ok || s != suggestion.StatusAccepted {
		t.Fatalf("unexpected parse: %q %v", s, ok)
	}
	if _, ok := suggestion.ParseStatus("bogus"); ok {
		t.Fatal("expected bogus status rejected")
	}
	if suggestion.StatusPending.Terminal() || !suggestion.StatusExpired.Terminal() {
		t.Fatal("unexpected terminal classification")
	}
}
