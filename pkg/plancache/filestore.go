package plancache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/habitkit/habitkit/pkg/entitlement"
)

// FileDecisionStore persists the decision as a JSON file. Writes go through
// a temp file and rename so a crash mid-write leaves the previous decision
// intact.
type FileDecisionStore struct {
	path string
}

// NewFileDecisionStore creates a store at the given path.
func NewFileDecisionStore(path string) *FileDecisionStore {
	if path == "" {
		panic("plancache: file path is required")
	}
	return &FileDecisionStore{path: path}
}

func (s *FileDecisionStore) Load(_ context.Context) (*entitlement.Decision, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read decision file: %w", err)
	}

	var dec entitlement.Decision
	if err := json.Unmarshal(data, &dec); err != nil {
		return nil, fmt.Errorf("failed to parse decision file: %w", err)
	}
	return &dec, nil
}

func (s *FileDecisionStore) Save(_ context.Context, dec *entitlement.Decision) error {
	data, err := json.Marshal(dec)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create decision dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".plan-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write decision: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace decision file: %w", err)
	}
	return nil
}
