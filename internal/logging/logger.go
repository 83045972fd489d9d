// Package logging writes a rotating file log for the assistant. Until Init is
// called every call is discarded, so library code and tests never touch disk.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level orders log severities
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel maps a config string to a Level. Unknown names mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Options configure Init
type Options struct {
	File  string
	Level string
	JSON  bool
}

// Logger is a leveled wrapper over log.Logger
type Logger struct {
	mu       sync.Mutex
	logger   *log.Logger
	closer   io.Closer
	level    Level
	jsonMode bool
}

// New creates a logger writing to w
func New(w io.Writer, level Level, jsonMode bool) *Logger {
	flags := log.LstdFlags
	if jsonMode {
		flags = 0
	}
	return &Logger{
		logger:   log.New(w, "", flags),
		level:    level,
		jsonMode: jsonMode,
	}
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(io.Discard, LevelError, false)
)

// Init opens the rotating log file and installs it as the default logger.
// ELIXIR_ASSIST_JSON_LOGS=1 forces JSON lines.
func Init(opts Options) (*Logger, error) {
	if opts.File == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	if os.Getenv("ELIXIR_ASSIST_JSON_LOGS") == "1" {
		opts.JSON = true
	}

	logFile := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    15, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	l := New(logFile, ParseLevel(opts.Level), opts.JSON)
	l.closer = logFile

	SetDefault(l)
	return l, nil
}

// SetDefault replaces the package-level logger
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the package-level logger
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Close releases the underlying file, if any
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Enabled reports whether messages at level are written
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		_ = json.NewEncoder(l.logger.Writer()).Encode(map[string]any{
			"time":  time.Now().Format(time.RFC3339Nano),
			"level": level.String(),
			"msg":   msg,
		})
		return
	}
	l.logger.Printf("[%s] %s", strings.ToUpper(level.String()), msg)
}

func (l *Logger) Debug(format string, args ...interface{}) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{}) { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{}) { l.logf(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.logf(LevelError, format, args...) }

// Trace logs entry to name and returns a func that logs the exit with elapsed time.
//
//	defer logging.Trace("job.Run")()
func (l *Logger) Trace(name string) func() {
	if !l.Enabled(LevelDebug) {
		return func() {}
	}
	start := time.Now()
	l.logf(LevelDebug, "-> %s", name)
	return func() {
		l.logf(LevelDebug, "<- %s (%s)", name, time.Since(start))
	}
}

func Debug(format string, args ...interface{}) { Default().Debug(format, args...) }
func Info(format string, args ...interface{}) { Default().Info(format, args...) }
func Warn(format string, args ...interface{}) { Default().Warn(format, args...) }
func Error(format string, args ...interface{}) { Default().Error(format, args...) }

func Trace(name string) func() { return Default().Trace(name) }
