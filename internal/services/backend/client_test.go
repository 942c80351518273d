package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"facereview/internal/jobprogress"
	"facereview/internal/services"
	"facereview/internal/suggestion"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "secret", WithHTTPClient(srv.Client()))
}

func TestListSuggestionsAcceptsBothEnvelopes(t *testing.T) {
	cases := map[string]string{
		"data+pagination":  `{"data":[{"id":"s1","confidence":0.8}],"pagination":{"total":41,"page":2,"pageSize":20}}`,
		"items+flat total": `{"items":[{"id":"s1","confidence":0.8}],"total":41,"page":2,"pageSize":20}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/suggestions" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if got := r.URL.Query().Get("status"); got != "pending" {
					t.Errorf("status query = %q", got)
				}
				if got := r.URL.Query().Get("pageSize"); got != "20" {
					t.Errorf("pageSize query = %q", got)
				}
				_, _ = io.WriteString(w, body)
			})
			page, err := client.ListSuggestions(context.Background(), ListQuery{Status: suggestion.StatusPending, Page: 2, PageSize: 20})
			if err != nil {
				t.Fatalf("ListSuggestions: %v", err)
			}
			if len(page.Items) != 1 || page.Items[0].ID != "s1" {
				t.Fatalf("unexpected items %+v", page.Items)
			}
			if page.Total != 41 || page.Page != 2 || page.PageSize != 20 || !page.HasMore() {
				t.Fatalf("unexpected pagination %+v", page)
			}
		})
	}
}

func TestRequestsCarryHeaders(t *testing.T) {
	var seen http.Header
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		_, _ = io.WriteString(w, `{"id":"s42","status":"pending"}`)
	})
	if _, err := client.GetSuggestion(context.Background(), "s42"); err != nil {
		t.Fatalf("GetSuggestion: %v", err)
	}
	if seen.Get("Authorization") != "Bearer secret" {
		t.Fatalf("missing bearer token: %v", seen)
	}
	if seen.Get(requestIDHeader) == "" {
		t.Fatal("missing request id")
	}

	ctx := services.WithRequestID(context.Background(), "req-1")
	if _, err := client.GetSuggestion(ctx, "s42"); err != nil {
		t.Fatalf("GetSuggestion: %v", err)
	}
	if seen.Get(requestIDHeader) != "req-1" {
		t.Fatalf("expected propagated request id, got %q", seen.Get(requestIDHeader))
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		call   func(*Client) error
		want   error
	}{
		{"suggestion 404", 404, func(c *Client) error { _, err := c.GetSuggestion(context.Background(), "x"); return err }, services.ErrNotFound},
		{"accept 409", 409, func(c *Client) error { _, err := c.AcceptSuggestion(context.Background(), "x"); return err }, services.ErrAlreadyReviewed},
		{"reject 409", 409, func(c *Client) error { _, err := c.RejectSuggestion(context.Background(), "x"); return err }, services.ErrAlreadyReviewed},
		{"person 409", 409, func(c *Client) error { _, err := c.CreatePerson(context.Background(), "Mia"); return err }, services.ErrValidation},
		{"find more 400", 400, func(c *Client) error { _, err := c.FindMore(context.Background(), "p1", FindMoreRequest{}); return err }, services.ErrValidation},
		{"bulk 422", 422, func(c *Client) error { _, err := c.BulkAction(context.Background(), BulkActionRequest{}); return err }, services.ErrValidation},
		{"assign 429", 429, func(c *Client) error { _, err := c.AssignFace(context.Background(), "f", "p"); return err }, services.ErrQuotaExceeded},
		{"unassign 503", 503, func(c *Client) error { return c.UnassignFace(context.Background(), "f") }, services.ErrTransport},
		{"status 404", 404, func(c *Client) error { _, err := c.JobStatus(context.Background(), "k"); return err }, services.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"detail":"nope"}`)
			})
			err := tt.call(client)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var statusErr *StatusError
			if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.status || statusErr.Message != "nope" {
				t.Fatalf("expected StatusError with detail, got %#v", statusErr)
			}
		})
	}
}

func TestDecodeFailureIsTransport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":`)
	})
	_, err := client.GetSuggestion(context.Background(), "s1")
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestNetworkFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	client := New(url, "")
	_, err := client.GetSuggestion(context.Background(), "s1")
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestDeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	client.timeout = 20 * time.Millisecond

	_, err := client.GetSuggestion(context.Background(), "s1")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestRequestTimeoutAppliesUnderLongerDeadline(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	client.timeout = 20 * time.Millisecond

	session, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	started := time.Now()
	_, err := client.JobStatus(session, "k1")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("request ran for %s under a session deadline", elapsed)
	}
	if session.Err() != nil {
		t.Fatal("session context must stay usable after one request times out")
	}
}

func TestBulkActionRoundTrip(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/suggestions/bulk-action" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req BulkActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if strings.Join(req.SuggestionIDs, ",") != "1,2,3" || req.Action != ActionAccept || !req.AutoFindMore {
			t.Errorf("unexpected body %+v", req)
		}
		_, _ = io.WriteString(w, `{"successCount":2,"failedCount":1,"errors":[{"suggestionId":"2","reason":"already reviewed"}],"findMoreJobs":[{"personId":"p1","jobId":"j1","progressKey":"k1"}]}`)
	})
	resp, err := client.BulkAction(context.Background(), BulkActionRequest{SuggestionIDs: []string{"1", "2", "3"}, Action: ActionAccept, AutoFindMore: true})
	if err != nil {
		t.Fatalf("BulkAction: %v", err)
	}
	if resp.SuccessCount != 2 || len(resp.Errors) != 1 || resp.Errors[0].SuggestionID != "2" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.FindMoreJobs) != 1 || resp.FindMoreJobs[0].ProgressKey != "k1" {
		t.Fatalf("unexpected jobs %+v", resp.FindMoreJobs)
	}
}

func TestFaceSuggestionsAndAssign(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/faces/f7/suggestions":
			if r.URL.Query().Get("assetId") != "a1" {
				t.Errorf("missing assetId")
			}
			_, _ = io.WriteString(w, `{"faceId":"f7","suggestions":[{"id":"s42","faceInstanceId":"f7","suggestedPersonId":"p1","confidence":0.91,"status":"pending"}]}`)
		case "/faces/f7/assign":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["personId"] != "p1" {
				t.Errorf("unexpected assign body %v", body)
			}
			_, _ = io.WriteString(w, `{"faceId":"f7","personId":"p1","personName":"Mia"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	recs, err := client.FaceSuggestions(context.Background(), "f7", "a1")
	if err != nil || len(recs) != 1 || recs[0].Confidence != 0.91 {
		t.Fatalf("FaceSuggestions: %+v %v", recs, err)
	}
	out, err := client.AssignFace(context.Background(), "f7", "p1")
	if err != nil || out.PersonName == nil || *out.PersonName != "Mia" {
		t.Fatalf("AssignFace: %+v %v", out, err)
	}
}

func TestJobStatusDecodesTerminalFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("progress_key") != "k1" {
			t.Errorf("missing progress key")
		}
		_, _ = io.WriteString(w, `{"phase":"Completed","current":10,"total":10,"suggestionsCreated":42}`)
	})
	ev, err := client.JobStatus(context.Background(), "k1")
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if ev.Phase != jobprogress.PhaseCompleted || ev.SuggestionsCreated == nil || *ev.SuggestionsCreated != 42 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestOpenJobEvents(t *testing.T) {
	t.Run("stream", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "text/event-stream" {
				t.Errorf("unexpected accept header %q", r.Header.Get("Accept"))
			}
			w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
			_, _ = io.WriteString(w, "event: progress\ndata: {}\n\n")
		})
		body, err := client.OpenJobEvents(context.Background(), "k1")
		if err != nil {
			t.Fatalf("OpenJobEvents: %v", err)
		}
		defer body.Close()
		data, _ := io.ReadAll(body)
		if !strings.HasPrefix(string(data), "event: progress") {
			t.Fatalf("unexpected body %q", data)
		}
	})
	t.Run("not a stream", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{}`)
		})
		if _, err := client.OpenJobEvents(context.Background(), "k1"); !errors.Is(err, services.ErrTransport) {
			t.Fatalf("expected transport error, got %v", err)
		}
	})
	t.Run("404", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
		if _, err := client.OpenJobEvents(context.Background(), "k1"); !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestMissingBaseURL(t *testing.T) {
	client := New("", "")
	if _, err := client.GetSuggestion(context.Background(), "s1"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
