package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONFile keeps the whole history in one indented JSON document that is
// rewritten on every change.
type JSONFile struct {
	path string
	log  *zap.Logger
}

// NewJSONFile returns a backend for path. The file is created on first Persist.
func NewJSONFile(path string, logger *zap.Logger) *JSONFile {
	return &JSONFile{path: path, log: logger.Named("store.json")}
}

func (j *JSONFile) Name() string { return "json:" + j.path }

// Load reads the file. A missing file is an empty history.
func (j *JSONFile) Load(_ context.Context) (map[string][]string, error) {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", j.path, err)
	}
	if len(data) == 0 {
		return map[string][]string{}, nil
	}

	var m map[string][]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, j.path, err)
	}
	if m == nil {
		m = map[string][]string{}
	}
	return m, nil
}

// Persist rewrites the file atomically with the full snapshot.
func (j *JSONFile) Persist(_ context.Context, original, healed string, snapshot map[string][]string) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode selector history: %w", err)
	}

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".selectors-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush history: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", j.path, err)
	}

	j.log.Debug("Persisted selector history",
		zap.String("original", original),
		zap.String("healed", healed),
		zap.Int("selectors", len(snapshot)))
	return nil
}

func (j *JSONFile) Close() error { return nil }
