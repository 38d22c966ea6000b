package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrCorrupt marks a journal document that could not be decoded. Callers
// treat a corrupt journal as empty; the next successful write replaces it.
var ErrCorrupt = errors.New("journal corrupt")

// Store abstracts the persistence of journal documents so the lifecycle
// engine can be tested against an in-memory fake. Documents are always
// read and written whole.
type Store interface {
	// Load decodes the document at path into v. A missing document
	// returns os.ErrNotExist; an undecodable one returns ErrCorrupt.
	Load(path string, v any) error

	// Save atomically replaces the document at path with v.
	Save(path string, v any) error
}

// FileStore persists journal documents as JSON files. Saves go through a
// temporary file in the same directory followed by a rename, so readers
// never observe a partially written journal.
type FileStore struct{}

func NewFileStore() FileStore { return FileStore{} }

func (FileStore) Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("load journal %s: %w", path, os.ErrNotExist)
		}
		return fmt.Errorf("load journal %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("load journal %s: %w: %v", path, ErrCorrupt, err)
	}
	return nil
}

func (FileStore) Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("save journal %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("save journal %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		cleanup()
		return fmt.Errorf("save journal %s: encode: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("save journal %s: sync: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("save journal %s: close: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("save journal %s: rename: %w", path, err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{docs: map[string][]byte{}}
}

func (m *MemStore) Load(path string, v any) error {
	m.mu.RLock()
	data, ok := m.docs[path]
	m.mu.RUnlock()
	if !ok {
		return os.ErrNotExist
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

func (m *MemStore) Save(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[path] = data
	m.mu.Unlock()
	return nil
}

// Corrupt replaces the stored document with undecodable bytes, for tests.
func (m *MemStore) Corrupt(path string) {
	m.mu.Lock()
	m.docs[path] = []byte("{not json")
	m.mu.Unlock()
}
