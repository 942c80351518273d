package jobprogress

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// Handle controls one monitoring session.
type Handle struct {
	key      string
	handlers Handlers
	cancel   func()
	done     chan struct{}
	logger   *slog.Logger

	// mu is held for the whole of every handler invocation.
	mu          sync.Mutex
	stopped     atomic.Bool
	dispatching atomic.Bool

	state    sync.RWMutex
	mode     Mode
	last     *Event
	terminal bool
	err      error
}

// Key returns the progress key being observed.
func (h *Handle) Key() string { return h.key }

// Done is closed when the session goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Mode returns the current transport state.
func (h *Handle) Mode() Mode {
	h.state.RLock()
	defer h.state.RUnlock()
	return h.mode
}

// Last returns the most recently delivered event.
func (h *Handle) Last() (Event, bool) {
	h.state.RLock()
	defer h.state.RUnlock()
	if h.last == nil {
		return Event{}, false
	}
	return *h.last, true
}

// Err returns the terminal error once the session has failed.
func (h *Handle) Err() error {
	h.state.RLock()
	defer h.state.RUnlock()
	return h.err
}

// Stop ends the session. It is idempotent, safe after the session ended on
// its own and safe to call from inside a handler. No handler starts after
// Stop returns.
func (h *Handle) Stop() {
	h.stopped.Store(true)
	h.cancel()
	for !h.mu.TryLock() {
		// A handler is already running (possibly the caller itself).
		if h.dispatching.Load() {
			return
		}
		runtime.Gosched()
	}
	h.mu.Unlock()
}

func (h *Handle) setMode(mode Mode) {
	h.state.Lock()
	h.mode = mode
	h.state.Unlock()
}

func (h *Handle) isTerminal() bool {
	h.state.RLock()
	defer h.state.RUnlock()
	return h.terminal
}

// invoke runs fn as a handler unless the session was stopped. The accept
// callback decides under the state lock whether the event is still wanted.
func (h *Handle) invoke(accept func() bool, fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped.Load() {
		return false
	}
	if !accept() {
		return false
	}
	h.dispatching.Store(true)
	defer h.dispatching.Store(false)
	fn()
	return true
}

func (h *Handle) progress(ev Event) {
	h.invoke(func() bool {
		h.state.Lock()
		defer h.state.Unlock()
		if h.terminal || !newer(h.last, ev) || sameProgress(h.last, ev) {
			return false
		}
		stored := ev
		h.last = &stored
		return true
	}, func() {
		if h.handlers.OnProgress != nil {
			h.handlers.OnProgress(ev)
		}
	})
}

func (h *Handle) complete(ev Event) bool {
	return h.invoke(func() bool {
		if !h.markTerminal(nil) {
			return false
		}
		h.state.Lock()
		stored := ev
		h.last = &stored
		h.state.Unlock()
		return true
	}, func() {
		if h.handlers.OnComplete != nil {
			h.handlers.OnComplete(ev)
		}
	})
}

// terminate delivers a terminal error with the last known progress.
func (h *Handle) terminate(err error) bool {
	var last *Event
	return h.invoke(func() bool {
		if !h.markTerminal(err) {
			return false
		}
		h.state.RLock()
		if h.last != nil {
			copied := *h.last
			last = &copied
		}
		h.state.RUnlock()
		return true
	}, func() {
		if h.handlers.OnError != nil {
			h.handlers.OnError(err, last)
		}
	})
}

// markTerminal flips the session to terminal exactly once and blocks any
// later handler.
func (h *Handle) markTerminal(err error) bool {
	h.state.Lock()
	defer h.state.Unlock()
	if h.terminal {
		return false
	}
	h.terminal = true
	h.mode = ModeTerminal
	h.err = err
	h.stopped.Store(true)
	return true
}

func sameProgress(last *Event, ev Event) bool {
	return last != nil &&
		last.Phase == ev.Phase &&
		last.Current == ev.Current &&
		last.Total == ev.Total &&
		last.Message == ev.Message
}
