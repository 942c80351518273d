package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"facereview/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrTransport, "assign", "accept", "request failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"assign", "accept", "request failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransport(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "engine failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestKindMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{services.Wrap(services.ErrNotFound, "backend", "get", "", nil), "not_found"},
		{services.Wrap(services.ErrAlreadyReviewed, "backend", "accept", "", nil), "already_reviewed"},
		{services.ErrBusy, "busy"},
		{fmt.Errorf("outer: %w", services.ErrValidation), "validation"},
		{services.ErrQuotaExceeded, "quota_exceeded"},
		{services.ErrTimeout, "timeout"},
		{errors.New("anything else"), "transport"},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
	if services.Retryable(services.ErrAlreadyReviewed) {
		t.Fatal("already reviewed must not be retryable")
	}
	if !services.Retryable(services.ErrBusy) {
		t.Fatal("busy should be retryable")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithFaceID(ctx, "f7")
	ctx = services.WithSuggestionID(ctx, "s42")
	ctx = services.WithOperation(ctx, "accept")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.FaceIDFromContext(ctx); !ok || id != "f7" {
		t.Fatalf("unexpected face id: %v %v", id, ok)
	}
	if id, ok := services.SuggestionIDFromContext(ctx); !ok || id != "s42" {
		t.Fatalf("unexpected suggestion id: %v %v", id, ok)
	}
	if op, ok := services.OperationFromContext(ctx); !ok || op != "accept" {
		t.Fatalf("unexpected operation: %v %v", op, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithFaceID(ctx, "")
	if _, ok := services.FaceIDFromContext(ctx); ok {
		t.Fatal("expected no face id value")
	}
}
