package recent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"facereview/internal/kvstore"
	"facereview/internal/logging"
)

const (
	// Namespace and Key locate the persisted list in the key/value store.
	Namespace = "facereview"
	Key       = "recent-persons"

	// DefaultCapacity applies when a non-positive capacity is supplied.
	DefaultCapacity = 20
)

// Cache is a bounded most-recently-used list of person ids. Failures to read
// or write the backing store never surface to callers; the in-memory list stays
// authoritative for the rest of the session.
type Cache struct {
	store    kvstore.Store
	capacity int
	logger   *slog.Logger

	mu     sync.Mutex
	loaded bool
	ids    []string
}

// New returns a cache persisted through store. A nil store keeps the list in
// memory only.
func New(store kvstore.Store, capacity int, logger *slog.Logger) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		store:    store,
		capacity: capacity,
		logger:   logging.NewComponentLogger(logger, "recent"),
	}
}

// Record moves personID to the front of the list, dropping any earlier
// occurrence and truncating to capacity.
func (c *Cache) Record(ctx context.Context, personID string) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded(ctx)

	next := make([]string, 0, len(c.ids)+1)
	next = append(next, personID)
	for _, id := range c.ids {
		if id != personID {
			next = append(next, id)
		}
	}
	if len(next) > c.capacity {
		next = next[:c.capacity]
	}
	c.ids = next
	c.persist(ctx)
}

// List returns the ids, most recent first.
func (c *Cache) List(ctx context.Context) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded(ctx)

	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Clear empties the list and removes the persisted entry.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ids = nil
	c.loaded = true
	if c.store == nil {
		return nil
	}
	if err := c.store.Delete(ctx, Namespace, Key); err != nil {
		return fmt.Errorf("clear recent selections: %w", err)
	}
	return nil
}

// Capacity returns the configured list bound.
func (c *Cache) Capacity() int {
	return c.capacity
}

func (c *Cache) ensureLoaded(ctx context.Context) {
	if c.loaded {
		return
	}
	c.loaded = true
	c.ids = nil
	if c.store == nil {
		return
	}

	ids, err := c.read(ctx)
	if err != nil {
		logging.WarnWithContext(c.logger, "recent selections unreadable, starting empty", "recent_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the stored list will be overwritten on the next selection"),
			logging.String(logging.FieldImpact, "recently used people are not pre-listed"))
		return
	}
	c.ids = ids
}

func (c *Cache) read(ctx context.Context) ([]string, error) {
	data, ok, err := c.store.Get(ctx, Namespace, Key)
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode recent selections: %w", err)
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == c.capacity {
			break
		}
	}
	if len(out) == 0 && len(raw) > 0 {
		return nil, errors.New("recent selections contained no usable ids")
	}
	return out, nil
}

func (c *Cache) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(c.ids)
	if err == nil {
		err = c.store.Put(ctx, Namespace, Key, data)
	}
	if err != nil {
		logging.WarnWithContext(c.logger, "failed to persist recent selections", "recent_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "selection order is kept for this session only"))
	}
}
