package preflight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"facereview/internal/kvstore"
	"facereview/internal/services"
	"facereview/internal/services/backend"
	"facereview/internal/suggestion"
)

const (
	apiCheckTimeout   = 5 * time.Second
	stateCheckTimeout = 2 * time.Second
	stateNamespace    = "facereview"
	stateProbeKey     = "preflight"
)

// APIProbe is the read-only backend call used to test connectivity.
type APIProbe interface {
	ListSuggestions(ctx context.Context, q backend.ListQuery) (backend.SuggestionPage, error)
}

// CheckAPI verifies that the review API is reachable and accepts the token.
// It issues one request with no retries.
func CheckAPI(ctx context.Context, api APIProbe) Result {
	const name = "Review API"
	if api == nil {
		return Result{Name: name, Detail: "not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, apiCheckTimeout)
	defer cancel()

	page, err := api.ListSuggestions(checkCtx, backend.ListQuery{Status: suggestion.StatusPending, PageSize: 1})
	if err != nil {
		return Result{Name: name, Detail: summarizeAPIError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d pending)", page.Total)}
}

func summarizeAPIError(err error) string {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "auth failed (check api.token)"
		default:
			return fmt.Sprintf("request failed (http %d)", statusErr.StatusCode)
		}
	}
	if errors.Is(err, services.ErrTimeout) {
		return fmt.Sprintf("no response within %s", apiCheckTimeout)
	}
	return fmt.Sprintf("unreachable (%v)", err)
}

// CheckState verifies that the key/value backend can be read.
func CheckState(ctx context.Context, state kvstore.Store) Result {
	const name = "Local state"
	if state == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, stateCheckTimeout)
	defer cancel()

	if _, _, err := state.Get(checkCtx, stateNamespace, stateProbeKey); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("read failed (%v)", err)}
	}
	detail := "readable"
	if p, ok := state.(interface{ Path() string }); ok {
		detail = fmt.Sprintf("%s (readable)", p.Path())
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}
