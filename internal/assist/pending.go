package assist

import (
	"fmt"
	"sync"

	"github.com/elixir-editor/assist/internal/storage"
	"github.com/elixir-editor/assist/pkg/types"
)

// PendingStore holds merges between analysis and apply. storage.JSONStore
// implements it on disk.
type PendingStore interface {
	SavePending(p *types.PendingMerge) error
	GetPending(path string) (*types.PendingMerge, error)
	DeletePending(path string) error
}

type memoryPending struct {
	mu     sync.Mutex
	merges map[string]types.PendingMerge
}

func newMemoryPending() *memoryPending {
	return &memoryPending{merges: make(map[string]types.PendingMerge)}
}

func (m *memoryPending) SavePending(p *types.PendingMerge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges[p.Path] = *p
	return nil
}

func (m *memoryPending) GetPending(path string) (*types.PendingMerge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.merges[path]
	if !ok {
		return nil, fmt.Errorf("no pending merge for %s: %w", path, storage.ErrNotFound)
	}
	return &p, nil
}

func (m *memoryPending) DeletePending(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.merges, path)
	return nil
}
