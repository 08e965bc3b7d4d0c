package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sweeney/grow-controller/internal/schedule"
)

type fileState struct {
	Rules []schedule.Rule `json:"rules"`
	schedule.Overrides
}

// JSONFile persists the store as a single JSON document. Saves replace the
// file atomically so a crash leaves either the old or the new state.
type JSONFile struct {
	path string
}

// NewJSONFile returns a backend writing to path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Load reads the file. A missing file is an empty store.
func (f *JSONFile) Load(ctx context.Context) (Snapshot, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", f.path, err)
	}

	var st fileState
	if err := json.Unmarshal(b, &st); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return Snapshot{Rules: st.Rules, Overrides: st.Overrides}, nil
}

// Save writes s to a temp file in the same directory, syncs it and renames it
// over the target.
func (f *JSONFile) Save(ctx context.Context, s Snapshot) error {
	rules := s.Rules
	if rules == nil {
		rules = []schedule.Rule{}
	}
	b, err := json.MarshalIndent(fileState{Rules: rules, Overrides: s.Overrides}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("rename to %s: %w", f.path, err)
	}
	return nil
}

// Close is a no-op.
func (f *JSONFile) Close() error {
	return nil
}
