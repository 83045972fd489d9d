package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elixir-editor/assist/pkg/types"
)

func setupTestStore(t *testing.T) *JSONStore {
	t.Helper()
	return NewJSONStore(t.TempDir())
}

// =============================================================================
// PENDING MERGE TESTS
// =============================================================================

func TestPendingSaveAndGet(t *testing.T) {
	store := setupTestStore(t)

	p := &types.PendingMerge{
		Path:     "/work/src/app.js",
		Strategy: types.StrategyBlock,
		Overlap:  0.42,
		Source:   "old",
		Merged:   "new",
	}
	require.NoError(t, store.SavePending(p))
	assert.False(t, p.CreatedAt.IsZero())

	got, err := store.GetPending("/work/src/app.js")
	require.NoError(t, err)
	assert.Equal(t, types.StrategyBlock, got.Strategy)
	assert.Equal(t, "old", got.Source)
	assert.Equal(t, "new", got.Merged)
	assert.InDelta(t, 0.42, got.Overlap, 1e-9)
}

func TestPendingReplacesPerPath(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.SavePending(&types.PendingMerge{Path: "/a.go", Merged: "one"}))
	require.NoError(t, store.SavePending(&types.PendingMerge{Path: "/a.go", Merged: "two"}))
	require.NoError(t, store.SavePending(&types.PendingMerge{Path: "/b.go", Merged: "three"}))

	got, err := store.GetPending("/a.go")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Merged)

	all, err := store.ListPending()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPendingMissing(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetPending("/nope.go")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, store.DeletePending("/nope.go"))

	all, err := store.ListPending()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPendingDelete(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.SavePending(&types.PendingMerge{Path: "/a.go", Merged: "x"}))

	require.NoError(t, store.DeletePending("/a.go"))

	_, err := store.GetPending("/a.go")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListPendingNewestFirstSkipsJunk(t *testing.T) {
	store := setupTestStore(t)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, store.SavePending(&types.PendingMerge{Path: "/old.go", CreatedAt: old}))
	require.NoError(t, store.SavePending(&types.PendingMerge{Path: "/new.go"}))
	require.NoError(t, os.WriteFile(filepath.Join(store.BasePath(), "pending", "junk.json"), []byte("{"), 0644))

	all, err := store.ListPending()

	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "/new.go", all[0].Path)
	assert.Equal(t, "/old.go", all[1].Path)
}

func TestSavePendingRequiresPath(t *testing.T) {
	assert.Error(t, setupTestStore(t).SavePending(&types.PendingMerge{}))
}

func TestGenerateID(t *testing.T) {
	id := generateID("job")

	parts := strings.Split(id, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "job", parts[0])
	assert.Equal(t, time.Now().Format("20060102"), parts[1])
	assert.Len(t, parts[2], 8)
	assert.NotEqual(t, id, generateID("job"))
}
