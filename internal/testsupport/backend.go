package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"facereview/internal/jobprogress"
	"facereview/internal/services/backend"
	"facereview/internal/suggestion"
)

// FakeBackend is an in-memory implementation of the review API served over
// httptest. It is safe for concurrent use.
type FakeBackend struct {
	URL string

	mu          sync.Mutex
	suggestions map[string]suggestion.Suggestion
	faces       map[string]backend.FaceAssignment
	persons     map[string]backend.Person
	jobs        map[string][]jobprogress.Event
	failures    map[string]int
	requests    []string
	nextID      int
}

// NewFakeBackend starts a fake API server that is closed with the test.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()

	f := &FakeBackend{
		suggestions: map[string]suggestion.Suggestion{},
		faces:       map[string]backend.FaceAssignment{},
		persons:     map[string]backend.Person{},
		jobs:        map[string][]jobprogress.Event{},
		failures:    map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /suggestions", f.listSuggestions)
	mux.HandleFunc("GET /suggestions/{id}", f.getSuggestion)
	mux.HandleFunc("POST /suggestions/{id}/accept", f.review(suggestion.StatusAccepted))
	mux.HandleFunc("POST /suggestions/{id}/reject", f.review(suggestion.StatusRejected))
	mux.HandleFunc("POST /suggestions/bulk-action", f.bulkAction)
	mux.HandleFunc("POST /suggestions/persons/{personId}/find-more", f.findMore)
	mux.HandleFunc("GET /job-progress/events", f.jobEvents)
	mux.HandleFunc("GET /job-progress/status", f.jobStatus)
	mux.HandleFunc("GET /faces/{faceId}/suggestions", f.faceSuggestions)
	mux.HandleFunc("POST /faces/{faceId}/assign", f.assignFace)
	mux.HandleFunc("DELETE /faces/{faceId}/person", f.unassignFace)
	mux.HandleFunc("POST /persons", f.createPerson)
	mux.HandleFunc("DELETE /persons/{personId}", f.deletePerson)

	srv := httptest.NewServer(f.intercept(mux))
	t.Cleanup(srv.Close)
	f.URL = srv.URL
	return f
}

// AddSuggestion seeds a suggestion. Empty status defaults to pending.
func (f *FakeBackend) AddSuggestion(rec suggestion.Suggestion) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.Status == "" {
		rec.Status = suggestion.StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	f.suggestions[rec.ID] = rec
	if _, ok := f.faces[rec.FaceInstanceID]; !ok && rec.FaceInstanceID != "" {
		f.faces[rec.FaceInstanceID] = backend.FaceAssignment{FaceID: rec.FaceInstanceID}
	}
	if rec.SuggestedPersonID != "" && rec.PersonName != "" {
		if _, ok := f.persons[rec.SuggestedPersonID]; !ok {
			f.persons[rec.SuggestedPersonID] = backend.Person{ID: rec.SuggestedPersonID, Name: rec.PersonName}
		}
	}
}

// AddPerson seeds a person.
func (f *FakeBackend) AddPerson(p backend.Person) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persons[p.ID] = p
}

// SetJob scripts the progress reported for progressKey. Status polls return
// the events in order and keep returning the last one.
func (f *FakeBackend) SetJob(progressKey string, events ...jobprogress.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[progressKey] = append([]jobprogress.Event(nil), events...)
}

// Fail makes every request matching pattern (e.g. "POST /faces/{faceId}/assign")
// answer with status until cleared with status 0.
func (f *FakeBackend) Fail(pattern string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == 0 {
		delete(f.failures, pattern)
		return
	}
	f.failures[pattern] = status
}

// Suggestion returns the server-side record.
func (f *FakeBackend) Suggestion(id string) (suggestion.Suggestion, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.suggestions[id]
	return rec, ok
}

// Face returns the server-side face assignment.
func (f *FakeBackend) Face(id string) (backend.FaceAssignment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	face, ok := f.faces[id]
	return face, ok
}

// Person returns the server-side person.
func (f *FakeBackend) Person(id string) (backend.Person, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.persons[id]
	return p, ok
}

// People returns every person, sorted by id.
func (f *FakeBackend) People() []backend.Person {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.Person, 0, len(f.persons))
	for _, p := range f.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Requests returns "METHOD /path" for every request received.
func (f *FakeBackend) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *FakeBackend) intercept(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pattern := next.Handler(r)
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		status := f.failures[pattern]
		f.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]string{"detail": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func detail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func (f *FakeBackend) listSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	f.mu.Lock()
	var all []suggestion.Suggestion
	for _, rec := range f.suggestions {
		if s := q.Get("status"); s != "" && string(rec.Status) != s {
			continue
		}
		if p := q.Get("personId"); p != "" && rec.SuggestedPersonID != p {
			continue
		}
		all = append(all, rec)
	}
	f.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Confidence != all[j].Confidence {
			return all[i].Confidence > all[j].Confidence
		}
		return all[i].ID < all[j].ID
	})
	start := (page - 1) * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": all[start:end],
		"pagination": map[string]int{
			"total":    len(all),
			"page":     page,
			"pageSize": size,
		},
	})
}

func (f *FakeBackend) getSuggestion(w http.ResponseWriter, r *http.Request) {
	rec, ok := f.Suggestion(r.PathValue("id"))
	if !ok {
		detail(w, http.StatusNotFound, "suggestion not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (f *FakeBackend) review(target suggestion.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		rec, status, msg := f.applyLocked(r.PathValue("id"), target)
		if status != http.StatusOK {
			detail(w, status, msg)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (f *FakeBackend) applyLocked(id string, target suggestion.Status) (suggestion.Suggestion, int, string) {
	rec, ok := f.suggestions[id]
	if !ok {
		return rec, http.StatusNotFound, "suggestion not found"
	}
	if rec.Status != suggestion.StatusPending {
		return rec, http.StatusConflict, "suggestion already reviewed"
	}
	now := time.Now().UTC()
	rec.Status = target
	rec.ReviewedAt = &now
	f.suggestions[id] = rec
	if target == suggestion.StatusAccepted && rec.FaceInstanceID != "" {
		pid := rec.SuggestedPersonID
		name := f.persons[pid].Name
		f.faces[rec.FaceInstanceID] = backend.FaceAssignment{FaceID: rec.FaceInstanceID, PersonID: &pid, PersonName: &name}
	}
	return rec, http.StatusOK, ""
}

func (f *FakeBackend) bulkAction(w http.ResponseWriter, r *http.Request) {
	var req backend.BulkActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.SuggestionIDs) == 0 || !req.Action.Valid() {
		detail(w, http.StatusUnprocessableEntity, "invalid bulk request")
		return
	}
	target := suggestion.StatusAccepted
	if req.Action == backend.ActionReject {
		target = suggestion.StatusRejected
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	resp := backend.BulkActionResponse{Errors: []backend.BulkItemError{}}
	var accepted []string
	for _, id := range req.SuggestionIDs {
		rec, status, msg := f.applyLocked(id, target)
		if status != http.StatusOK {
			resp.FailedCount++
			resp.Errors = append(resp.Errors, backend.BulkItemError{SuggestionID: id, Reason: msg})
			continue
		}
		resp.SuccessCount++
		accepted = append(accepted, rec.SuggestedPersonID)
	}
	if req.AutoFindMore && req.Action == backend.ActionAccept {
		seen := map[string]bool{}
		for _, pid := range accepted {
			if seen[pid] {
				continue
			}
			seen[pid] = true
			resp.FindMoreJobs = append(resp.FindMoreJobs, f.startJobLocked(pid, req.FindMorePrototypeCount))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeBackend) startJobLocked(personID string, prototypes int) backend.Job {
	f.nextID++
	key := fmt.Sprintf("find-more-%s-%d", personID, f.nextID)
	if _, scripted := f.jobs[key]; !scripted {
		created := 3
		f.jobs[key] = []jobprogress.Event{
			{Phase: jobprogress.PhaseSelecting, Current: 1, Total: 3},
			{Phase: jobprogress.PhaseSearching, Current: 2, Total: 3},
			{Phase: jobprogress.PhaseCompleted, Current: 3, Total: 3, SuggestionsCreated: &created},
		}
	}
	return backend.Job{
		JobID:          fmt.Sprintf("job-%d", f.nextID),
		PersonID:       personID,
		PrototypeCount: prototypes,
		Status:         backend.JobQueued,
		ProgressKey:    key,
	}
}

func (f *FakeBackend) findMore(w http.ResponseWriter, r *http.Request) {
	var req backend.FindMoreRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	personID := r.PathValue("personId")

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.persons[personID]; !ok {
		detail(w, http.StatusNotFound, "person not found")
		return
	}
	writeJSON(w, http.StatusOK, f.startJobLocked(personID, req.PrototypeCount))
}

func (f *FakeBackend) jobEvents(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	events, ok := f.jobs[r.URL.Query().Get("progress_key")]
	events = append([]jobprogress.Event(nil), events...)
	f.mu.Unlock()
	if !ok {
		detail(w, http.StatusNotFound, "job not found")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, ev := range events {
		name := "progress"
		switch ev.Phase {
		case jobprogress.PhaseCompleted:
			name = "complete"
		case jobprogress.PhaseFailed:
			name = "error"
		}
		data, _ := json.Marshal(ev)
		_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (f *FakeBackend) jobStatus(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("progress_key")
	f.mu.Lock()
	events, ok := f.jobs[key]
	if !ok || len(events) == 0 {
		f.mu.Unlock()
		detail(w, http.StatusNotFound, "job not found")
		return
	}
	ev := events[0]
	if len(events) > 1 {
		f.jobs[key] = events[1:]
	}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, ev)
}

func (f *FakeBackend) faceSuggestions(w http.ResponseWriter, r *http.Request) {
	faceID := r.PathValue("faceId")
	f.mu.Lock()
	out := []suggestion.Suggestion{}
	for _, rec := range f.suggestions {
		if rec.FaceInstanceID == faceID {
			out = append(out, rec)
		}
	}
	f.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"faceId": faceID, "suggestions": out})
}

func (f *FakeBackend) assignFace(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PersonID string `json:"personId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PersonID == "" {
		detail(w, http.StatusBadRequest, "personId required")
		return
	}
	faceID := r.PathValue("faceId")

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.persons[body.PersonID]
	if !ok {
		detail(w, http.StatusNotFound, "person not found")
		return
	}
	pid, name := p.ID, p.Name
	face := backend.FaceAssignment{FaceID: faceID, PersonID: &pid, PersonName: &name}
	f.faces[faceID] = face
	for id, rec := range f.suggestions {
		if rec.FaceInstanceID == faceID && rec.Status == suggestion.StatusPending {
			delete(f.suggestions, id)
		}
	}
	writeJSON(w, http.StatusOK, face)
}

func (f *FakeBackend) unassignFace(w http.ResponseWriter, r *http.Request) {
	faceID := r.PathValue("faceId")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faces[faceID] = backend.FaceAssignment{FaceID: faceID}
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeBackend) createPerson(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		detail(w, http.StatusBadRequest, "name required")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.persons {
		if strings.EqualFold(p.Name, body.Name) {
			detail(w, http.StatusConflict, "person already exists")
			return
		}
	}
	f.nextID++
	p := backend.Person{ID: fmt.Sprintf("p-%d", f.nextID), Name: body.Name}
	f.persons[p.ID] = p
	writeJSON(w, http.StatusCreated, p)
}

func (f *FakeBackend) deletePerson(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("personId")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.persons[id]; !ok {
		detail(w, http.StatusNotFound, "person not found")
		return
	}
	delete(f.persons, id)
	w.WriteHeader(http.StatusNoContent)
}
