package datasync

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore is the device-side store. Both operations are synchronous; the
// engine relies on Set completing before a mutation returns.
type LocalStore interface {
	Get() (Aggregate, error)
	Set(agg Aggregate) error
}

// MemoryLocal is an in-memory LocalStore, used in tests and as the embedded
// cache for short-lived sessions.
type MemoryLocal struct {
	mu  sync.Mutex
	agg Aggregate
}

func NewMemoryLocal() *MemoryLocal {
	return &MemoryLocal{}
}

func (m *MemoryLocal) Get() (Aggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agg.Clone(), nil
}

func (m *MemoryLocal) Set(agg Aggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agg = agg.Clone()
	return nil
}

// FileLocal persists the aggregate as one JSON file. Writes go through a
// temp file and rename so a crash mid-write leaves the previous snapshot
// intact. A missing file reads as an empty aggregate.
type FileLocal struct {
	mu   sync.Mutex
	path string
}

func NewFileLocal(path string) *FileLocal {
	if path == "" {
		panic("datasync: file path is required")
	}
	return &FileLocal{path: path}
}

func (f *FileLocal) Get() (Aggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Aggregate{}, nil
		}
		return Aggregate{}, fmt.Errorf("failed to read local store: %w", err)
	}

	var agg Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return Aggregate{}, fmt.Errorf("failed to parse local store: %w", err)
	}
	return agg, nil
}

func (f *FileLocal) Set(agg Aggregate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create local store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".habits-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write aggregate: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace local store: %w", err)
	}
	return nil
}
