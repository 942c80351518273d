package suggestion

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrUnknown is returned by Transition when the id is not in the store.
	ErrUnknown = errors.New("suggestion not in store")
	// ErrNotPending is returned by Transition when the record already left pending.
	ErrNotPending = errors.New("suggestion is not pending")
)

// Snapshot is an immutable view of the store at one version. Readers may hold
// on to a snapshot indefinitely; writers never modify a published snapshot.
type Snapshot struct {
	version uint64
	records map[string]Suggestion
	// revs maps an id to the version that last wrote it, including deletes.
	revs map[string]uint64
}

// Version increases by one for every published mutation.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int { return len(s.records) }

// Get returns a copy of the record with the given id.
func (s *Snapshot) Get(id string) (Suggestion, bool) {
	rec, ok := s.records[id]
	if !ok {
		return Suggestion{}, false
	}
	return rec.Clone(), true
}

// All returns every record ordered by confidence (highest first), then id.
func (s *Snapshot) All() []Suggestion {
	return s.filter(func(Suggestion) bool { return true })
}

// Records returns a copy of the underlying map, suitable for deep equality checks.
func (s *Snapshot) Records() map[string]Suggestion {
	out := make(map[string]Suggestion, len(s.records))
	for id, rec := range s.records {
		out[id] = rec.Clone()
	}
	return out
}

func (s *Snapshot) filter(keep func(Suggestion) bool) []Suggestion {
	out := make([]Suggestion, 0)
	for _, rec := range s.records {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Store is the in-memory collection of suggestion records keyed by id. Every
// mutation clones the current map, applies the change, and publishes the
// result as a new Snapshot.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Snapshot{records: map[string]Suggestion{}, revs: map[string]uint64{}})
	return s
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Upsert inserts or replaces a record.
func (s *Store) Upsert(rec Suggestion) error {
	_, err := s.Apply(func(tx *Tx) error { return tx.Put(rec) })
	return err
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (Suggestion, bool) {
	return s.Snapshot().Get(id)
}

// Remove deletes the record with the given id. Removing an absent id is a no-op.
func (s *Store) Remove(id string) {
	_, _ = s.Apply(func(tx *Tx) error {
		tx.Delete(id)
		return nil
	})
}

// ListByFace returns every record (any status) for the face.
func (s *Store) ListByFace(faceID string) []Suggestion {
	return s.Snapshot().filter(func(rec Suggestion) bool { return rec.FaceInstanceID == faceID })
}

// PendingByFace returns the active pending set for the face.
func (s *Store) PendingByFace(faceID string) []Suggestion {
	return s.Snapshot().filter(func(rec Suggestion) bool {
		return rec.FaceInstanceID == faceID && rec.Pending()
	})
}

// Pending returns the active pending set across all faces.
func (s *Store) Pending() []Suggestion {
	return s.Snapshot().filter(Suggestion.Pending)
}

// PendingByPerson returns pending suggestions for the given suggested person.
func (s *Store) PendingByPerson(personID string) []Suggestion {
	return s.Snapshot().filter(func(rec Suggestion) bool {
		return rec.SuggestedPersonID == personID && rec.Pending()
	})
}

// Transition moves a pending record to a terminal status and stamps
// reviewedAt. It returns the record as it was before the change.
func (s *Store) Transition(id string, status Status, reviewedAt time.Time) (Suggestion, error) {
	var prev Suggestion
	_, err := s.Apply(func(tx *Tx) error {
		var err error
		prev, err = tx.Transition(id, status, reviewedAt)
		return err
	})
	return prev, err
}

// Confirm records a status the backend has already committed. Unlike
// Transition it overwrites terminal records too. An id unknown locally is
// still stamped so that an earlier optimistic change to it is not reverted.
// It returns the previous record and whether the id was known.
func (s *Store) Confirm(id string, status Status, reviewedAt time.Time) (prev Suggestion, known bool, err error) {
	_, err = s.Apply(func(tx *Tx) error {
		var err error
		prev, known, err = tx.Confirm(id, status, reviewedAt)
		return err
	})
	return prev, known, err
}

// RemovePendingByFace drops the face's pending records and returns them so a
// caller can restore them.
func (s *Store) RemovePendingByFace(faceID string) []Suggestion {
	var removed []Suggestion
	_, _ = s.Apply(func(tx *Tx) error {
		removed = tx.RemovePending(faceID, "")
		return nil
	})
	return removed
}

// ReplaceFace swaps the face's records for the provided list in a single
// mutation.
func (s *Store) ReplaceFace(faceID string, recs []Suggestion) {
	_, _ = s.Apply(func(tx *Tx) error {
		for id, rec := range tx.records {
			if rec.FaceInstanceID == faceID {
				tx.Delete(id)
			}
		}
		for _, rec := range recs {
			rec.FaceInstanceID = faceID
			// Records without an id or with an unknown status are dropped.
			_ = tx.Put(rec)
		}
		return nil
	})
}

// Saved holds pre-mutation copies of a set of records.
type Saved map[string]savedEntry

type savedEntry struct {
	record  Suggestion
	existed bool
	// rev is the version that must still own the id for Revert to touch it.
	rev uint64
}

// IDs returns the saved ids in sorted order.
func (s Saved) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Capture records the current state (including absence) of the given ids.
func (s *Store) Capture(ids ...string) Saved {
	snap := s.Snapshot()
	saved := make(Saved, len(ids))
	for _, id := range ids {
		rec, ok := snap.records[id]
		saved[id] = savedEntry{record: rec.Clone(), existed: ok, rev: snap.revs[id]}
	}
	return saved
}

// Restore puts records back exactly as captured. Ids captured as absent are
// removed.
func (s *Store) Restore(saved Saved) {
	if len(saved) == 0 {
		return
	}
	_, _ = s.Apply(func(tx *Tx) error {
		for id, entry := range saved {
			tx.reset(id, entry)
		}
		return nil
	})
}

// Revert undoes the write that produced saved. Ids written again since then
// are left alone and returned in sorted order.
func (s *Store) Revert(saved Saved) (skipped []string) {
	if len(saved) == 0 {
		return nil
	}
	_, _ = s.Apply(func(tx *Tx) error {
		for _, id := range saved.IDs() {
			entry := saved[id]
			if tx.revs[id] != entry.rev {
				skipped = append(skipped, id)
				continue
			}
			tx.reset(id, entry)
		}
		return nil
	})
	return skipped
}

// Apply runs write as one atomic mutation. When write returns an error nothing
// is published. The returned Saved holds the prior state of every id the write
// touched and can be handed to Revert.
func (s *Store) Apply(write func(tx *Tx) error) (Saved, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	tx := &Tx{
		records: make(map[string]Suggestion, len(cur.records)+1),
		revs:    make(map[string]uint64, len(cur.revs)+1),
		version: cur.version + 1,
		saved:   Saved{},
	}
	for id, rec := range cur.records {
		tx.records[id] = rec
	}
	for id, rev := range cur.revs {
		tx.revs[id] = rev
	}
	if err := write(tx); err != nil {
		return nil, err
	}
	if len(tx.saved) == 0 {
		return tx.saved, nil
	}
	s.current.Store(&Snapshot{version: tx.version, records: tx.records, revs: tx.revs})
	return tx.saved, nil
}

// Tx is a mutation in progress. It is only valid inside Store.Apply.
type Tx struct {
	records map[string]Suggestion
	revs    map[string]uint64
	version uint64
	saved   Saved
}

// Get returns the record as seen by this mutation.
func (tx *Tx) Get(id string) (Suggestion, bool) {
	rec, ok := tx.records[id]
	if !ok {
		return Suggestion{}, false
	}
	return rec.Clone(), true
}

func (tx *Tx) touch(id string) {
	if _, seen := tx.saved[id]; !seen {
		rec, ok := tx.records[id]
		tx.saved[id] = savedEntry{record: rec.Clone(), existed: ok, rev: tx.version}
	}
	tx.revs[id] = tx.version
}

func (tx *Tx) reset(id string, entry savedEntry) {
	tx.touch(id)
	if entry.existed {
		tx.records[id] = entry.record.Clone()
	} else {
		delete(tx.records, id)
	}
}

// Put inserts or replaces a record.
func (tx *Tx) Put(rec Suggestion) error {
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return errors.New("suggestion id cannot be empty")
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("suggestion %s: invalid status %q", rec.ID, rec.Status)
	}
	tx.touch(rec.ID)
	tx.records[rec.ID] = rec.Clone()
	return nil
}

// Delete removes a record and reports whether it existed.
func (tx *Tx) Delete(id string) bool {
	if _, ok := tx.records[id]; !ok {
		return false
	}
	tx.touch(id)
	delete(tx.records, id)
	return true
}

// Transition moves a pending record to a terminal status and returns the
// record as it was before.
func (tx *Tx) Transition(id string, status Status, reviewedAt time.Time) (Suggestion, error) {
	if !status.Valid() || !status.Terminal() {
		return Suggestion{}, fmt.Errorf("invalid target status %q", status)
	}
	rec, ok := tx.records[id]
	if !ok {
		return Suggestion{}, fmt.Errorf("%s: %w", id, ErrUnknown)
	}
	if !rec.Pending() {
		return Suggestion{}, fmt.Errorf("%s is %s: %w", id, rec.Status, ErrNotPending)
	}
	prev := rec.Clone()
	tx.touch(id)
	tx.records[id] = reviewed(rec, status, reviewedAt)
	return prev, nil
}

// Confirm is the transactional form of Store.Confirm.
func (tx *Tx) Confirm(id string, status Status, reviewedAt time.Time) (Suggestion, bool, error) {
	if !status.Valid() || !status.Terminal() {
		return Suggestion{}, false, fmt.Errorf("invalid target status %q", status)
	}
	rec, ok := tx.records[id]
	tx.touch(id)
	if !ok {
		return Suggestion{}, false, nil
	}
	prev := rec.Clone()
	if rec.Status != status || rec.ReviewedAt == nil {
		tx.records[id] = reviewed(rec, status, reviewedAt)
	}
	return prev, true, nil
}

// RemovePending drops the face's pending records and returns them. A non-empty
// personID limits the removal to suggestions of that person.
func (tx *Tx) RemovePending(faceID, personID string) []Suggestion {
	var removed []Suggestion
	for id, rec := range tx.records {
		if rec.FaceInstanceID != faceID || !rec.Pending() {
			continue
		}
		if personID != "" && rec.SuggestedPersonID != personID {
			continue
		}
		removed = append(removed, rec.Clone())
		tx.Delete(id)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	return removed
}

func reviewed(rec Suggestion, status Status, at time.Time) Suggestion {
	rec = rec.Clone()
	stamp := at.UTC()
	rec.Status = status
	rec.ReviewedAt = &stamp
	return rec
}
