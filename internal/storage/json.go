package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/elixir-editor/assist/pkg/types"
)

// JSONStore keeps merges that await an explicit apply, one JSON file per
// buffer path under <basePath>/pending.
type JSONStore struct {
	basePath string
}

// NewJSONStore creates a new JSON store
func NewJSONStore(basePath string) *JSONStore {
	return &JSONStore{
		basePath: basePath,
	}
}

// BasePath returns the base path
func (s *JSONStore) BasePath() string {
	return s.basePath
}

func (s *JSONStore) pendingDir() string {
	return filepath.Join(s.basePath, "pending")
}

// pendingFile derives a stable file name from the buffer path
func (s *JSONStore) pendingFile(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	key := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path))
	return filepath.Join(s.pendingDir(), key.String()+".json")
}

// SavePending stores p, replacing any earlier pending merge for the same path
func (s *JSONStore) SavePending(p *types.PendingMerge) error {
	if p.Path == "" {
		return fmt.Errorf("pending merge has no path")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return writeJSON(s.pendingFile(p.Path), p)
}

// GetPending returns the pending merge for path
func (s *JSONStore) GetPending(path string) (*types.PendingMerge, error) {
	p, err := readJSON[types.PendingMerge](s.pendingFile(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no pending merge for %s: %w", path, ErrNotFound)
	}
	return p, err
}

// DeletePending discards the pending merge for path. Missing is not an error.
func (s *JSONStore) DeletePending(path string) error {
	err := os.Remove(s.pendingFile(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ListPending returns all pending merges, newest first
func (s *JSONStore) ListPending() ([]types.PendingMerge, error) {
	entries, err := os.ReadDir(s.pendingDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []types.PendingMerge
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		p, err := readJSON[types.PendingMerge](filepath.Join(s.pendingDir(), e.Name()))
		if err != nil {
			// skip half-written or foreign files
			continue
		}
		out = append(out, *p)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func readJSON[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func writeJSON(path string, v any) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	data = append(data, '\n')

	// Atomic write: write to temp file then rename to prevent corruption
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func generateID(prefix string) string {
	now := time.Now()
	short := uuid.New().String()[:8]
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), short)
}
