package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// FileStore keeps every entry in one JSON document. Each operation takes an
// exclusive lock on a sibling .lock file and re-reads the document, so several
// processes can share the same path.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

type fileEntry struct {
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type fileDocument map[string]map[string]fileEntry

const lockRetryDelay = 25 * time.Millisecond

// ErrCorrupt marks a document that exists but cannot be parsed. Reads return
// it; the next write moves the document to <path>.corrupt and starts over.
var ErrCorrupt = errors.New("state file is corrupt")

// OpenFile prepares a file backed store at path. The document itself is created
// lazily on the first write.
func OpenFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("kvstore: file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStore{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	namespace, key, err := checkKey(namespace, key)
	if err != nil {
		return nil, false, err
	}
	var (
		value []byte
		found bool
	)
	err = s.withLock(ctx, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		entry, ok := doc[namespace][key]
		if !ok {
			return nil
		}
		value, found = entry.Value, true
		return nil
	})
	return value, found, err
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	namespace, key, err := checkKey(namespace, key)
	if err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		doc, err := s.loadForWrite()
		if err != nil {
			return err
		}
		if doc[namespace] == nil {
			doc[namespace] = map[string]fileEntry{}
		}
		doc[namespace][key] = fileEntry{
			Value:     value,
			UpdatedAt: time.Now().UTC(),
		}
		return s.save(doc)
	})
}

// Delete implements Store. Deleting a missing entry is not an error.
func (s *FileStore) Delete(ctx context.Context, namespace, key string) error {
	namespace, key, err := checkKey(namespace, key)
	if err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		doc, err := s.loadForWrite()
		if err != nil {
			return err
		}
		if _, ok := doc[namespace][key]; !ok {
			return nil
		}
		delete(doc[namespace], key)
		if len(doc[namespace]) == 0 {
			delete(doc, namespace)
		}
		return s.save(doc)
	})
}

// Close releases the lock handle.
func (s *FileStore) Close() error {
	if s == nil || s.lock == nil {
		return nil
	}
	return s.lock.Close()
}

func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire state lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquire state lock: %s is held by another process", s.lock.Path())
	}
	defer func() {
		_ = s.lock.Unlock()
	}()
	return fn()
}

func (s *FileStore) load() (fileDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fileDocument{}, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return fileDocument{}, nil
	}
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse state file: %w: %w", ErrCorrupt, err)
	}
	if doc == nil {
		doc = fileDocument{}
	}
	return doc, nil
}

func (s *FileStore) loadForWrite() (fileDocument, error) {
	doc, err := s.load()
	if err == nil || !errors.Is(err, ErrCorrupt) {
		return doc, err
	}
	if err := os.Rename(s.path, s.path+".corrupt"); err != nil {
		return nil, fmt.Errorf("set aside corrupt state file: %w", err)
	}
	return fileDocument{}, nil
}

func (s *FileStore) save(doc fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
