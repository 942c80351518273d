package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"facereview/internal/config"
)

// Store is a namespaced key/value store for opaque values.
type Store interface {
	// Get returns the value stored under namespace/key. A missing entry is
	// reported with ok=false and a nil error.
	Get(ctx context.Context, namespace, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
	Close() error
}

var errEmptyKey = errors.New("kvstore: namespace and key are required")

// Open builds the backend selected by cfg.State.
func Open(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("kvstore: config is required")
	}
	switch cfg.State.Backend {
	case "file":
		return OpenFile(cfg.State.Path)
	case "", "sqlite":
		return OpenSQLite(cfg.State.Path)
	default:
		return nil, fmt.Errorf("kvstore: unknown backend %q", cfg.State.Backend)
	}
}

func checkKey(namespace, key string) (string, string, error) {
	namespace = strings.TrimSpace(namespace)
	key = strings.TrimSpace(key)
	if namespace == "" || key == "" {
		return "", "", errEmptyKey
	}
	return namespace, key, nil
}
