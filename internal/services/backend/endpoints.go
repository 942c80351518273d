package backend

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"facereview/internal/jobprogress"
	"facereview/internal/services"
	"facereview/internal/suggestion"
)

// ListSuggestions returns one page of suggestions.
func (c *Client) ListSuggestions(ctx context.Context, q ListQuery) (SuggestionPage, error) {
	query := url.Values{}
	if q.Status != "" {
		query.Set("status", string(q.Status))
	}
	if q.PersonID != "" {
		query.Set("personId", q.PersonID)
	}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	var env listEnvelope
	err := c.do(ctx, call{
		operation: "list suggestions",
		method:    http.MethodGet,
		route:     "/suggestions",
		path:      "/suggestions",
		query:     query,
		out:       &env,
		resource:  resourceSuggestion,
	})
	if err != nil {
		return SuggestionPage{}, err
	}
	return env.page(), nil
}

// GetSuggestion fetches one suggestion. A 404 maps to services.ErrNotFound.
func (c *Client) GetSuggestion(ctx context.Context, id string) (suggestion.Suggestion, error) {
	var rec suggestion.Suggestion
	err := c.do(ctx, call{
		operation: "get suggestion",
		method:    http.MethodGet,
		route:     "/suggestions/{id}",
		path:      "/suggestions/" + escape(id),
		out:       &rec,
		resource:  resourceSuggestion,
	})
	return rec, err
}

// AcceptSuggestion marks a suggestion accepted. A 409 maps to
// services.ErrAlreadyReviewed. The returned record is zero when the server
// sends no body.
func (c *Client) AcceptSuggestion(ctx context.Context, id string) (suggestion.Suggestion, error) {
	return c.review(ctx, id, "accept")
}

// RejectSuggestion marks a suggestion rejected.
func (c *Client) RejectSuggestion(ctx context.Context, id string) (suggestion.Suggestion, error) {
	return c.review(ctx, id, "reject")
}

func (c *Client) review(ctx context.Context, id, verb string) (suggestion.Suggestion, error) {
	var rec suggestion.Suggestion
	err := c.do(ctx, call{
		operation: verb + " suggestion",
		method:    http.MethodPost,
		route:     "/suggestions/{id}/" + verb,
		path:      "/suggestions/" + escape(id) + "/" + verb,
		out:       &rec,
		resource:  resourceSuggestion,
	})
	return rec, err
}

// BulkAction applies one action to many suggestions in a single request.
func (c *Client) BulkAction(ctx context.Context, req BulkActionRequest) (BulkActionResponse, error) {
	var resp BulkActionResponse
	err := c.do(ctx, call{
		operation: "bulk action",
		method:    http.MethodPost,
		route:     "/suggestions/bulk-action",
		path:      "/suggestions/bulk-action",
		body:      req,
		out:       &resp,
		resource:  resourceSuggestion,
	})
	return resp, err
}

// FindMore starts a background job searching for more faces of personID.
// The backend answers 400 when the person has too few labeled faces.
func (c *Client) FindMore(ctx context.Context, personID string, req FindMoreRequest) (Job, error) {
	var job Job
	err := c.do(ctx, call{
		operation: "find more",
		method:    http.MethodPost,
		route:     "/suggestions/persons/{id}/find-more",
		path:      "/suggestions/persons/" + escape(personID) + "/find-more",
		body:      req,
		out:       &job,
	})
	if err == nil && job.PersonID == "" {
		job.PersonID = personID
	}
	return job, err
}

// FaceSuggestions returns the suggestions attached to one face.
func (c *Client) FaceSuggestions(ctx context.Context, faceID, assetID string) ([]suggestion.Suggestion, error) {
	query := url.Values{}
	if assetID != "" {
		query.Set("assetId", assetID)
	}
	var env faceSuggestionsEnvelope
	err := c.do(ctx, call{
		operation: "face suggestions",
		method:    http.MethodGet,
		route:     "/faces/{id}/suggestions",
		path:      "/faces/" + escape(faceID) + "/suggestions",
		query:     query,
		out:       &env,
	})
	if err != nil {
		return nil, err
	}
	if env.Suggestions == nil {
		return []suggestion.Suggestion{}, nil
	}
	return env.Suggestions, nil
}

// AssignFace labels a face with an existing person.
func (c *Client) AssignFace(ctx context.Context, faceID, personID string) (FaceAssignment, error) {
	var out FaceAssignment
	err := c.do(ctx, call{
		operation: "assign face",
		method:    http.MethodPost,
		route:     "/faces/{id}/assign",
		path:      "/faces/" + escape(faceID) + "/assign",
		body:      assignRequest{PersonID: personID},
		out:       &out,
	})
	return out, err
}

// UnassignFace clears the person of a face.
func (c *Client) UnassignFace(ctx context.Context, faceID string) error {
	return c.do(ctx, call{
		operation: "unassign face",
		method:    http.MethodDelete,
		route:     "/faces/{id}/person",
		path:      "/faces/" + escape(faceID) + "/person",
	})
}

// CreatePerson creates a named person. A 409 (duplicate name) maps to
// services.ErrValidation.
func (c *Client) CreatePerson(ctx context.Context, name string) (Person, error) {
	var p Person
	err := c.do(ctx, call{
		operation: "create person",
		method:    http.MethodPost,
		route:     "/persons",
		path:      "/persons",
		body:      createPersonRequest{Name: name},
		out:       &p,
		resource:  resourcePerson,
	})
	if err == nil && p.Name == "" {
		p.Name = name
	}
	return p, err
}

// DeletePerson removes a person.
func (c *Client) DeletePerson(ctx context.Context, personID string) error {
	return c.do(ctx, call{
		operation: "delete person",
		method:    http.MethodDelete,
		route:     "/persons/{id}",
		path:      "/persons/" + escape(personID),
		resource:  resourcePerson,
	})
}

// JobStatus returns the latest progress for a job. A 404 means the job record
// has expired.
func (c *Client) JobStatus(ctx context.Context, progressKey string) (jobprogress.Event, error) {
	var ev jobprogress.Event
	err := c.do(ctx, call{
		operation: "job status",
		method:    http.MethodGet,
		route:     "/job-progress/status",
		path:      "/job-progress/status",
		query:     url.Values{"progress_key": []string{progressKey}},
		out:       &ev,
	})
	if err != nil {
		return jobprogress.Event{}, err
	}
	ev.Phase = jobprogress.Phase(strings.ToLower(strings.TrimSpace(string(ev.Phase))))
	return ev, nil
}

// OpenJobEvents opens the server-sent event stream for a job. The caller owns
// the returned body. Responses that are not an event stream are reported as
// transport errors so callers fall back to polling.
func (c *Client) OpenJobEvents(ctx context.Context, progressKey string) (io.ReadCloser, error) {
	spec := call{
		operation: "job events",
		method:    http.MethodGet,
		route:     "/job-progress/events",
		path:      "/job-progress/events",
		query:     url.Values{"progress_key": []string{progressKey}},
	}
	resp, requestID, err := c.send(ctx, spec, "text/event-stream")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		return nil, c.statusError(spec, resp.StatusCode, data, requestID)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, _ := mime.ParseMediaType(ct); mediaType != "text/event-stream" {
			_ = resp.Body.Close()
			return nil, services.Wrap(services.ErrTransport, "backend", spec.operation, "unexpected content type "+ct, nil)
		}
	}
	return resp.Body, nil
}
