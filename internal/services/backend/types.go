package backend

import (
	"encoding/json"

	"facereview/internal/suggestion"
)

// Action is a bulk review action.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Valid reports whether the action is understood by the backend.
func (a Action) Valid() bool {
	return a == ActionAccept || a == ActionReject
}

// ListQuery filters GET /suggestions.
type ListQuery struct {
	Status   suggestion.Status
	PersonID string
	Page     int
	PageSize int
}

// SuggestionPage is one page of suggestions with pagination metadata.
type SuggestionPage struct {
	Items    []suggestion.Suggestion `json:"items"`
	Total    int                     `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"pageSize"`
}

// HasMore reports whether another page is available.
func (p SuggestionPage) HasMore() bool {
	if p.PageSize <= 0 {
		return false
	}
	return p.Page*p.PageSize < p.Total
}

// listEnvelope accepts both list shapes the API has used:
// {data, pagination{...}} and {items, total, page, pageSize}.
type listEnvelope struct {
	Data       []suggestion.Suggestion `json:"data"`
	Items      []suggestion.Suggestion `json:"items"`
	Pagination *struct {
		Total    int `json:"total"`
		Page     int `json:"page"`
		PageSize int `json:"pageSize"`
	} `json:"pagination"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

func (e listEnvelope) page() SuggestionPage {
	out := SuggestionPage{Items: e.Data, Total: e.Total, Page: e.Page, PageSize: e.PageSize}
	if out.Items == nil {
		out.Items = e.Items
	}
	if e.Pagination != nil {
		out.Total = e.Pagination.Total
		out.Page = e.Pagination.Page
		out.PageSize = e.Pagination.PageSize
	}
	if out.Items == nil {
		out.Items = []suggestion.Suggestion{}
	}
	return out
}

// BulkActionRequest is the body of POST /suggestions/bulk-action.
type BulkActionRequest struct {
	SuggestionIDs          []string `json:"suggestionIds"`
	Action                 Action   `json:"action"`
	AutoFindMore           bool     `json:"autoFindMore,omitempty"`
	FindMorePrototypeCount int      `json:"findMorePrototypeCount,omitempty"`
}

// BulkItemError reports why one id in a bulk action failed.
type BulkItemError struct {
	SuggestionID string `json:"suggestionId"`
	Reason       string `json:"reason"`
}

// BulkActionResponse is the backend's per-id breakdown.
type BulkActionResponse struct {
	SuccessCount int             `json:"successCount"`
	FailedCount  int             `json:"failedCount"`
	Errors       []BulkItemError `json:"errors"`
	FindMoreJobs []Job           `json:"findMoreJobs,omitempty"`
}

// FindMoreRequest is the body of POST /suggestions/persons/{id}/find-more.
type FindMoreRequest struct {
	PrototypeCount int     `json:"prototypeCount,omitempty"`
	MaxSuggestions int     `json:"maxSuggestions,omitempty"`
	MinConfidence  float64 `json:"minConfidence,omitempty"`
}

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job describes a find-more background job.
type Job struct {
	JobID          string    `json:"jobId"`
	PersonID       string    `json:"personId"`
	PrototypeCount int       `json:"prototypeCount,omitempty"`
	Status         JobStatus `json:"status,omitempty"`
	ProgressKey    string    `json:"progressKey"`
}

// Person is a named person record.
type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FaceAssignment is the face state returned after assign/unassign.
type FaceAssignment struct {
	FaceID     string  `json:"faceId"`
	PersonID   *string `json:"personId"`
	PersonName *string `json:"personName"`
}

type faceSuggestionsEnvelope struct {
	FaceID      string                  `json:"faceId"`
	Suggestions []suggestion.Suggestion `json:"suggestions"`
}

type assignRequest struct {
	PersonID string `json:"personId"`
}

type createPersonRequest struct {
	Name string `json:"name"`
}

// errorBody covers the error shapes seen from the API.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}
