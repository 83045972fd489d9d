// Package config loads the assistant's settings from a TOML file in the project
// directory, with environment overrides, and hands them out through an owned
// Store that announces changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// DirName is the per-project directory holding config, history and logs
	DirName  = ".elixir-assist"
	FileName = "config.toml"
)

// Config is the full settings tree
type Config struct {
	AI      AIConfig      `toml:"ai"`
	Poll    PollConfig    `toml:"poll"`
	Merge   MergeConfig   `toml:"merge"`
	Log     LogConfig     `toml:"log"`
	History HistoryConfig `toml:"history"`
}

type AIConfig struct {
	Enabled       bool   `toml:"enabled"`
	APIToken      string `toml:"api_token"`
	BaseURL       string `toml:"base_url"`
	ModelVersion  string `toml:"model_version"`
	MaxTokens     int    `toml:"max_tokens"`
	SystemPrompt  string `toml:"system_prompt,omitempty"`
	AnalyzeOnSave bool   `toml:"analyze_on_save"`
}

// Ready reports whether analysis may run
func (c AIConfig) Ready() bool {
	return c.Enabled && c.APIToken != ""
}

type PollConfig struct {
	IntervalMS  int `toml:"interval_ms"`
	MaxAttempts int `toml:"max_attempts"`
}

// Interval returns the poll interval as a duration
func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

type MergeConfig struct {
	WholesaleLengthRatio float64 `toml:"wholesale_length_ratio"`
	WholesaleOverlap     float64 `toml:"wholesale_overlap"`
	LineOverlapFloor     float64 `toml:"line_overlap_floor"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"` // relative to the project directory
	JSON  bool   `toml:"json"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	File    string `toml:"file"` // relative to the project directory
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		AI: AIConfig{
			Enabled:      true,
			BaseURL:      "https://api.replicate.com",
			ModelVersion: "anthropic/claude-3.7-sonnet",
			MaxTokens:    4096,
		},
		Poll: PollConfig{
			IntervalMS:  1000,
			MaxAttempts: 60,
		},
		Merge: MergeConfig{
			WholesaleLengthRatio: 0.8,
			WholesaleOverlap:     0.5,
			LineOverlapFloor:     0.3,
		},
		Log: LogConfig{
			Level: "info",
			File:  "assist.log",
		},
		History: HistoryConfig{
			Enabled: true,
			File:    "history.db",
		},
	}
}

// Validate checks ranges
func (c *Config) Validate() error {
	var errs []error
	if c.Poll.IntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("poll.interval_ms must be positive, got %d", c.Poll.IntervalMS))
	}
	if c.Poll.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("poll.max_attempts must be positive, got %d", c.Poll.MaxAttempts))
	}
	if c.AI.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("ai.max_tokens must be positive, got %d", c.AI.MaxTokens))
	}
	for name, v := range map[string]float64{
		"merge.wholesale_length_ratio": c.Merge.WholesaleLengthRatio,
		"merge.wholesale_overlap":      c.Merge.WholesaleOverlap,
		"merge.line_overlap_floor":     c.Merge.LineOverlapFloor,
	} {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 1], got %g", name, v))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	out := *c
	out.AI.APIToken = MaskToken(c.AI.APIToken)
	return &out
}

// MaskToken keeps the first five characters of a token
func MaskToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 5 {
		return strings.Repeat("*", len(tok))
	}
	return tok[:5] + "..."
}

// ErrInvalidConfig wraps validation failures
var ErrInvalidConfig = errors.New("invalid configuration")

// ParseError is a malformed config file
type ParseError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %v", e.Path, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("parse error in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes TOML over the defaults
func Parse(path string, data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		pe := &ParseError{Path: path, Err: err}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			pe.Line, pe.Column = de.Position()
		}
		return nil, pe
	}
	return cfg, nil
}

// Load reads path (a missing file means defaults), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if cfg, err = Parse(path, data); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes cfg as TOML
func Marshal(cfg *Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

// Save writes cfg to path atomically
func Save(path string, cfg *Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// ApplyEnv overrides settings from the environment. ELIXIR_ASSIST_API_TOKEN
// wins over REPLICATE_API_TOKEN.
func ApplyEnv(cfg *Config) {
	if tok, ok := os.LookupEnv("REPLICATE_API_TOKEN"); ok && tok != "" {
		cfg.AI.APIToken = tok
	}
	if tok, ok := os.LookupEnv("ELIXIR_ASSIST_API_TOKEN"); ok && tok != "" {
		cfg.AI.APIToken = tok
	}
	if v, ok := os.LookupEnv("ELIXIR_ASSIST_MODEL"); ok && v != "" {
		cfg.AI.ModelVersion = v
	}
	if v, ok := os.LookupEnv("ELIXIR_ASSIST_BASE_URL"); ok && v != "" {
		cfg.AI.BaseURL = v
	}
	if v, ok := os.LookupEnv("ELIXIR_ASSIST_LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := os.LookupEnv("ELIXIR_ASSIST_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AI.Enabled = b
		}
	}
}

// Path returns the config file inside a project directory
func Path(projectDir string) string {
	return filepath.Join(projectDir, FileName)
}

// Resolve joins a configured file name onto the project directory unless it
// is already absolute.
func Resolve(projectDir, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(projectDir, name)
}

// FindDirFromCwd looks for the project directory from the working directory up
func FindDirFromCwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindDir(cwd)
}

// FindDir finds the .elixir-assist directory starting from startDir and
// walking up the tree.
func FindDir(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := absDir
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", ErrNoProject
}

// ErrNoProject means no project directory was found
var ErrNoProject = fmt.Errorf("not an elixir-assist project (no %s directory found)", DirName)
