package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store keeps each ledger file as a JSON array on the local filesystem.
// Writes go through a temp file + rename so a crash never leaves a
// half-written array behind.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates the backing directory if needed and returns the store.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("ledger dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(file string) string {
	return filepath.Join(s.dir, filepath.Base(file))
}

// Read returns all items in the file, oldest first. A missing file reads as
// an empty ledger.
func (s *Store) Read(_ context.Context, file string) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(file)
}

func (s *Store) readLocked(file string) ([]json.RawMessage, error) {
	raw, err := os.ReadFile(s.path(file))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	if len(raw) == 0 {
		return []json.RawMessage{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", file, err)
	}
	return items, nil
}

// Write replaces the file contents with the given items.
func (s *Store) Write(_ context.Context, file string, items []json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(file, items)
}

func (s *Store) writeLocked(file string, items []json.RawMessage) error {
	if items == nil {
		items = []json.RawMessage{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", file, err)
	}
	target := s.path(file)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(file)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", file, err)
	}
	return nil
}

// Append adds one item to the end of the file.
func (s *Store) Append(_ context.Context, file string, item json.RawMessage) error {
	if len(item) == 0 {
		return errors.New("item is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.readLocked(file)
	if err != nil {
		return err
	}
	items = append(items, item)
	return s.writeLocked(file, items)
}

// Exists reports whether the file has been written at least once.
func (s *Store) Exists(_ context.Context, file string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.path(file))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Ping verifies the backing directory is writable.
func (s *Store) Ping(_ context.Context) error {
	probe, err := os.CreateTemp(s.dir, ".ping-*")
	if err != nil {
		return fmt.Errorf("ledger dir not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
