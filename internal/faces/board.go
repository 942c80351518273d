package faces

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/text/cases"
)

// Face is the assignment subset of a face instance. A nil PersonID means the
// face is unassigned; PersonID and PersonName are always set or cleared together.
type Face struct {
	ID         string  `json:"faceId"`
	AssetID    string  `json:"assetId,omitempty"`
	PersonID   *string `json:"personId"`
	PersonName *string `json:"personName"`
}

// Assigned reports whether the face currently has a person.
func (f Face) Assigned() bool {
	return f.PersonID != nil
}

// Person returns the assignment pair with empty strings for an unassigned face.
func (f Face) Person() (id, name string) {
	if f.PersonID != nil {
		id = *f.PersonID
	}
	if f.PersonName != nil {
		name = *f.PersonName
	}
	return id, name
}

func (f Face) clone() Face {
	out := f
	if f.PersonID != nil {
		v := *f.PersonID
		out.PersonID = &v
	}
	if f.PersonName != nil {
		v := *f.PersonName
		out.PersonName = &v
	}
	return out
}

// Person is a named person known to the local directory.
type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type boardState struct {
	faces  map[string]Face
	people map[string]Person
	// revs maps a face id to the write that last changed it.
	revs map[string]uint64
	seq  uint64
}

func (st *boardState) touch(faceID string) uint64 {
	st.seq++
	st.revs[faceID] = st.seq
	return st.seq
}

// Change describes one write to a face: its state before the write and the
// revision the write produced.
type Change struct {
	FaceID  string
	Prev    Face
	Existed bool
	rev     uint64
}

// Board holds the active face list and the local person directory. Like the
// suggestion store it publishes a new immutable state on every write.
type Board struct {
	mu    sync.Mutex
	state atomic.Pointer[boardState]
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	b := &Board{}
	b.state.Store(&boardState{faces: map[string]Face{}, people: map[string]Person{}, revs: map[string]uint64{}})
	return b
}

// Track adds or replaces a face on the board.
func (b *Board) Track(face Face) {
	face.ID = strings.TrimSpace(face.ID)
	if face.ID == "" {
		return
	}
	if face.PersonID == nil {
		face.PersonName = nil
	}
	b.mutate(func(st *boardState) {
		st.touch(face.ID)
		st.faces[face.ID] = face.clone()
	})
}

// Face returns the current state of a face.
func (b *Board) Face(id string) (Face, bool) {
	face, ok := b.state.Load().faces[id]
	if !ok {
		return Face{}, false
	}
	return face.clone(), true
}

// Faces returns every tracked face ordered by id.
func (b *Board) Faces() []Face {
	st := b.state.Load()
	out := make([]Face, 0, len(st.faces))
	for _, face := range st.faces {
		out = append(out, face.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Unassigned returns tracked faces without a person.
func (b *Board) Unassigned() []Face {
	var out []Face
	for _, face := range b.Faces() {
		if !face.Assigned() {
			out = append(out, face)
		}
	}
	return out
}

// Assign sets both assignment fields of the face atomically. An untracked
// face is tracked as a side effect; Revert untracks it again.
func (b *Board) Assign(faceID, personID, personName string) Change {
	id, name := personID, personName
	return b.write(faceID, &id, &name)
}

// Unassign clears both assignment fields.
func (b *Board) Unassign(faceID string) Change {
	return b.write(faceID, nil, nil)
}

func (b *Board) write(faceID string, personID, personName *string) Change {
	ch := Change{FaceID: faceID}
	b.mutate(func(st *boardState) {
		prev, existed := st.faces[faceID]
		ch.Prev, ch.Existed = prev.clone(), existed
		next := prev.clone()
		next.ID = faceID
		next.PersonID, next.PersonName = personID, personName
		st.faces[faceID] = next
		ch.rev = st.touch(faceID)
	})
	return ch
}

// Revert puts the face back to its state before ch, unless the face was
// written again since. It reports whether the face was reverted.
func (b *Board) Revert(ch Change) bool {
	reverted := false
	b.mutate(func(st *boardState) {
		if st.revs[ch.FaceID] != ch.rev {
			return
		}
		reverted = true
		st.touch(ch.FaceID)
		if !ch.Existed {
			delete(st.faces, ch.FaceID)
			return
		}
		st.faces[ch.FaceID] = ch.Prev.clone()
	})
	return reverted
}

// RememberPerson adds or renames a person in the local directory.
func (b *Board) RememberPerson(p Person) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return
	}
	b.mutate(func(st *boardState) {
		st.people[p.ID] = p
	})
}

// ForgetPerson removes a person from the local directory.
func (b *Board) ForgetPerson(id string) {
	b.mutate(func(st *boardState) {
		delete(st.people, id)
	})
}

// PersonName looks up a display name for the person if it is known locally.
func (b *Board) PersonName(id string) (string, bool) {
	p, ok := b.state.Load().people[id]
	if !ok {
		return "", false
	}
	return p.Name, true
}

// FindPersonByName performs a case-folded exact name match.
func (b *Board) FindPersonByName(name string) (Person, bool) {
	// Casers carry state and are not shared between goroutines.
	fold := cases.Fold()
	want := fold.String(strings.TrimSpace(name))
	if want == "" {
		return Person{}, false
	}
	for _, p := range b.state.Load().people {
		if fold.String(p.Name) == want {
			return p, true
		}
	}
	return Person{}, false
}

// People returns the directory ordered by name.
func (b *Board) People() []Person {
	st := b.state.Load()
	out := make([]Person, 0, len(st.people))
	for _, p := range st.people {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (b *Board) mutate(apply func(*boardState)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.state.Load()
	next := &boardState{
		faces:  make(map[string]Face, len(cur.faces)+1),
		people: make(map[string]Person, len(cur.people)),
		revs:   make(map[string]uint64, len(cur.revs)+1),
		seq:    cur.seq,
	}
	for id, face := range cur.faces {
		next.faces[id] = face
	}
	for id, rev := range cur.revs {
		next.revs[id] = rev
	}
	for id, p := range cur.people {
		next.people[id] = p
	}
	apply(next)
	b.state.Store(next)
}
