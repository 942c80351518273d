package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"facereview/internal/kvstore"
	"facereview/internal/services/backend"
	"facereview/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckAPI_OK(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	result := CheckAPI(context.Background(), backend.New(fake.URL, ""))
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result.Detail != "reachable (0 pending)" {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestCheckAPI_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"items":[],"total":0,"page":1,"pageSize":1}`))
	}))
	defer srv.Close()

	result := CheckAPI(context.Background(), backend.New(srv.URL, "bad"))
	if result.Passed {
		t.Fatal("expected failure for bad token")
	}
	if !strings.Contains(result.Detail, "auth failed") {
		t.Fatalf("detail = %q", result.Detail)
	}
	if ok := CheckAPI(context.Background(), backend.New(srv.URL, "good")); !ok.Passed {
		t.Fatalf("expected pass with good token, got: %s", ok.Detail)
	}
}

func TestCheckAPI_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	result := CheckAPI(context.Background(), backend.New(url, ""))
	if result.Passed {
		t.Fatal("expected failure for closed server")
	}
	if !strings.HasPrefix(result.Detail, "unreachable") {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestRunAll(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	cfg := testsupport.NewConfig(t, testsupport.WithAPIURL(fake.URL))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	state, err := kvstore.Open(cfg)
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	defer state.Close()

	results := RunAll(context.Background(), cfg, backend.NewFromConfig(cfg), state)
	if len(results) != 3 {
		t.Fatalf("expected 3 results without file logging, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	cfg.Logging.File = true
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "missing")
	results = RunAll(context.Background(), cfg, backend.NewFromConfig(cfg), state)
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Log directory" {
		t.Fatalf("failed = %+v, want log directory only", failed)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if got := RunAll(context.Background(), nil, nil, nil); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
