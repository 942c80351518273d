package jobprogress

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Phase is the stage a find-more job reports.
type Phase string

const (
	PhaseSelecting Phase = "selecting"
	PhaseSearching Phase = "searching"
	PhaseCreating  Phase = "creating"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Rank orders phases; unknown phases rank below every known one.
func (p Phase) Rank() int {
	switch p {
	case PhaseSelecting:
		return 1
	case PhaseSearching:
		return 2
	case PhaseCreating:
		return 3
	case PhaseCompleted, PhaseFailed:
		return 4
	default:
		return 0
	}
}

// Terminal reports whether the phase ends the job.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Event is one progress report for a job.
type Event struct {
	Phase     Phase     `json:"phase"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`

	SuggestionsCreated *int   `json:"suggestionsCreated,omitempty"`
	CandidatesFound    *int   `json:"candidatesFound,omitempty"`
	PrototypesUsed     *int   `json:"prototypesUsed,omitempty"`
	Error              string `json:"error,omitempty"`
}

// Percent returns completion in [0,100], or 0 when the total is unknown.
func (e Event) Percent() float64 {
	if e.Total <= 0 {
		if e.Phase == PhaseCompleted {
			return 100
		}
		return 0
	}
	pct := float64(e.Current) / float64(e.Total) * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

// DecodeEvent parses one JSON progress payload.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode progress event: %w", err)
	}
	ev.Phase = Phase(strings.ToLower(strings.TrimSpace(string(ev.Phase))))
	return ev, nil
}

// newer reports whether next may be delivered after last. Phases never move
// backwards and current never decreases within a phase.
func newer(last *Event, next Event) bool {
	if last == nil {
		return true
	}
	lr, nr := last.Phase.Rank(), next.Phase.Rank()
	if nr != lr {
		return nr > lr
	}
	return next.Current >= last.Current
}
