package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), DirName)
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"REPLICATE_API_TOKEN", "ELIXIR_ASSIST_API_TOKEN", "ELIXIR_ASSIST_MODEL",
		"ELIXIR_ASSIST_BASE_URL", "ELIXIR_ASSIST_LOG_LEVEL", "ELIXIR_ASSIST_ENABLED",
	} {
		t.Setenv(k, "")
	}
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))

	require.NoError(t, err)
	assert.Equal(t, *Default(), *cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := setupConfigFile(t, `
[ai]
api_token = "r8_secret"
analyze_on_save = true

[poll]
max_attempts = 10

[merge]
line_overlap_floor = 0.25
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "r8_secret", cfg.AI.APIToken)
	assert.True(t, cfg.AI.AnalyzeOnSave)
	assert.True(t, cfg.AI.Enabled)
	assert.Equal(t, "anthropic/claude-3.7-sonnet", cfg.AI.ModelVersion)
	assert.Equal(t, 10, cfg.Poll.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Poll.Interval())
	assert.Equal(t, 0.25, cfg.Merge.LineOverlapFloor)
	assert.Equal(t, 0.8, cfg.Merge.WholesaleLengthRatio)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := setupConfigFile(t, "[ai]\napi_token = \"from-file\"\n")
	t.Setenv("REPLICATE_API_TOKEN", "from-replicate")
	t.Setenv("ELIXIR_ASSIST_API_TOKEN", "from-assist")
	t.Setenv("ELIXIR_ASSIST_MODEL", "meta/llama")
	t.Setenv("ELIXIR_ASSIST_LOG_LEVEL", "debug")
	t.Setenv("ELIXIR_ASSIST_ENABLED", "false")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "from-assist", cfg.AI.APIToken)
	assert.Equal(t, "meta/llama", cfg.AI.ModelVersion)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.AI.Enabled)
	assert.False(t, cfg.AI.Ready())
}

func TestLoad_ParseError(t *testing.T) {
	clearEnv(t)
	path := setupConfigFile(t, "[ai\nenabled = true\n")

	_, err := Load(path)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, path, pe.Path)
	assert.Greater(t, pe.Line, 0)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	path := setupConfigFile(t, "[poll]\nmax_attempts = 0\n[merge]\nwholesale_overlap = 1.5\n")

	_, err := Load(path)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "poll.max_attempts")
	assert.Contains(t, err.Error(), "merge.wholesale_overlap")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), DirName, FileName)
	cfg := Default()
	cfg.AI.AnalyzeOnSave = true
	cfg.Poll.IntervalMS = 250

	require.NoError(t, Save(path, cfg))
	got, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, *cfg, *got)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "", MaskToken(""))
	assert.Equal(t, "***", MaskToken("abc"))
	assert.Equal(t, "r8_ab...", MaskToken("r8_abcdef123"))

	cfg := Default()
	cfg.AI.APIToken = "r8_abcdef123"
	assert.Equal(t, "r8_ab...", cfg.Redacted().AI.APIToken)
	assert.Equal(t, "r8_abcdef123", cfg.AI.APIToken)
}

func TestFindDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, DirName), 0755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	got, err := FindDir(nested)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, DirName), got)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, filepath.Join("/p", "history.db"), Resolve("/p", "history.db"))
	assert.Equal(t, "/abs/log", Resolve("/p", "/abs/log"))
	assert.Equal(t, "", Resolve("/p", ""))
}

// =============================================================================
// STORE
// =============================================================================

func TestStore_UpdateNotifies(t *testing.T) {
	s := NewStore("", nil)

	var all, mergeOnly, pollOnly []Change
	s.Subscribe(func(c Change) { all = append(all, c) })
	s.SubscribeSection("merge", func(c Change) { mergeOnly = append(mergeOnly, c) })
	s.SubscribeSection("poll", func(c Change) { pollOnly = append(pollOnly, c) })

	err := s.Update("test", func(c *Config) { c.Merge.WholesaleOverlap = 0.6 })

	require.NoError(t, err)
	assert.Equal(t, 0.6, s.Get().Merge.WholesaleOverlap)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"merge"}, all[0].Sections)
	assert.Equal(t, ChangeSet, all[0].Type)
	assert.Equal(t, 0.5, all[0].Old.Merge.WholesaleOverlap)
	assert.Len(t, mergeOnly, 1)
	assert.Empty(t, pollOnly)
}

func TestStore_UpdateRejectsInvalid(t *testing.T) {
	s := NewStore("", nil)
	notified := false
	s.Subscribe(func(Change) { notified = true })

	err := s.Update("test", func(c *Config) { c.Poll.MaxAttempts = -1 })

	assert.Error(t, err)
	assert.Equal(t, 60, s.Get().Poll.MaxAttempts)
	assert.False(t, notified)
}

func TestStore_NoChangeNoNotify(t *testing.T) {
	s := NewStore("", nil)
	notified := false
	s.Subscribe(func(Change) { notified = true })

	require.NoError(t, s.Update("test", func(c *Config) {}))
	assert.False(t, notified)
}

func TestStore_Unsubscribe(t *testing.T) {
	s := NewStore("", nil)
	count := 0
	sub := s.Subscribe(func(Change) { count++ })

	require.NoError(t, s.Update("a", func(c *Config) { c.Log.Level = "debug" }))
	sub.Unsubscribe()
	require.NoError(t, s.Update("b", func(c *Config) { c.Log.Level = "warn" }))

	assert.Equal(t, 1, count)
}

func TestStore_Reload(t *testing.T) {
	clearEnv(t)
	path := setupConfigFile(t, "[poll]\nmax_attempts = 5\n")
	s, err := OpenStore(path)
	require.NoError(t, err)

	var got []Change
	s.Subscribe(func(c Change) { got = append(got, c) })

	require.NoError(t, os.WriteFile(path, []byte("[poll]\nmax_attempts = 7\n"), 0644))
	require.NoError(t, s.Reload())

	assert.Equal(t, 7, s.Get().Poll.MaxAttempts)
	require.Len(t, got, 1)
	assert.Equal(t, ChangeReload, got[0].Type)
	assert.True(t, got[0].Touches("poll"))
	assert.False(t, got[0].Touches("ai"))
}

func TestStore_ReloadKeepsLastGood(t *testing.T) {
	clearEnv(t)
	path := setupConfigFile(t, "[poll]\nmax_attempts = 5\n")
	s, err := OpenStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("not = [toml"), 0644))

	assert.Error(t, s.Reload())
	assert.Equal(t, 5, s.Get().Poll.MaxAttempts)
}

func TestStore_Save(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), FileName)
	s := NewStore(path, nil)
	require.NoError(t, s.Update("test", func(c *Config) { c.AI.AnalyzeOnSave = true }))

	require.NoError(t, s.Save())

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.AI.AnalyzeOnSave)
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := setupConfigFile(t, "[poll]\nmax_attempts = 5\n")
	s, err := OpenStore(path)
	require.NoError(t, err)

	reloaded := make(chan Change, 16)
	s.Subscribe(func(c Change) { reloaded <- c })

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, Watch(ctx, s, 10*time.Millisecond))
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	// give the watcher time to register
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[poll]\nmax_attempts = 9\n"), 0644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-reloaded:
			assert.Equal(t, ChangeReload, c.Type)
			// a reload can observe the file mid-write; wait for the final content
			if c.New.Poll.MaxAttempts == 9 {
				return
			}
		case <-deadline:
			t.Fatal("config was not reloaded")
		}
	}
}

func TestWatch_RequiresPath(t *testing.T) {
	err := Watch(context.Background(), NewStore("", nil), 0)
	assert.Error(t, err)
}
