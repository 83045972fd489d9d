package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn, false)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warn("shown %d", 3)
	l.Error("shown %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 3")
	assert.Contains(t, out, "[ERROR] shown 4")
}

func TestLogger_JSONMode(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug, true)

	l.Info("hello %s", "world")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, "hello world", rec["msg"])
	assert.NotEmpty(t, rec["time"])
}

func TestLogger_Trace(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug, false)

	l.Trace("pkg.Func")()

	out := buf.String()
	assert.Contains(t, out, "-> pkg.Func")
	assert.Contains(t, out, "<- pkg.Func")
}

func TestLogger_TraceDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo, false)

	l.Trace("pkg.Func")()

	assert.Empty(t, buf.String())
}

func TestInit_WritesFile(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	path := filepath.Join(t.TempDir(), "logs", "assist.log")
	l, err := Init(Options{File: path, Level: "debug"})
	require.NoError(t, err)

	Info("started %s", "ok")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "started ok"))
}

func TestInit_EmptyPath(t *testing.T) {
	_, err := Init(Options{})
	assert.Error(t, err)
}
