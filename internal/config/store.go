package config

import (
	"fmt"
	"sync"

	"github.com/elixir-editor/assist/internal/logging"
)

// Store owns the live configuration. Components receive it at construction
// and read snapshots; every mutation goes through Update or Reload and is
// announced to subscribers.
type Store struct {
	mu       sync.RWMutex
	cfg      Config
	path     string
	notifier *Notifier
}

// NewStore wraps cfg. path is the file Reload and Save use; it may be empty
// for a store that only lives in memory.
func NewStore(path string, cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	return &Store{
		cfg:      *cfg,
		path:     path,
		notifier: NewNotifier(),
	}
}

// OpenStore loads path and wraps the result
func OpenStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewStore(path, cfg), nil
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Get returns a snapshot of the current settings
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Subscribe registers an observer for every change
func (s *Store) Subscribe(observer Observer) *Subscription {
	return s.notifier.Subscribe(observer)
}

// SubscribeSection registers an observer for one top-level table
func (s *Store) SubscribeSection(section string, observer Observer) *Subscription {
	return s.notifier.SubscribeSection(section, observer)
}

// Update applies fn to a copy of the settings. The copy must validate.
func (s *Store) Update(source string, fn func(*Config)) error {
	s.mu.Lock()
	old := s.cfg
	next := s.cfg
	fn(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cfg = next
	s.mu.Unlock()

	if sections := diffSections(old, next); len(sections) > 0 {
		s.notifier.Notify(Change{Type: ChangeSet, Sections: sections, Old: old, New: next, Source: source})
	}
	return nil
}

// Reload re-reads the backing file. On error the current settings stay.
func (s *Store) Reload() error {
	if s.path == "" {
		return fmt.Errorf("config store has no backing file")
	}
	cfg, err := Load(s.path)
	if err != nil {
		logging.Warn("config reload failed: %v", err)
		return err
	}

	s.mu.Lock()
	old := s.cfg
	s.cfg = *cfg
	s.mu.Unlock()

	sections := diffSections(old, *cfg)
	logging.Info("config reloaded from %s (changed: %v)", s.path, sections)
	s.notifier.Notify(Change{Type: ChangeReload, Sections: sections, Old: old, New: *cfg, Source: s.path})
	return nil
}

// Save writes the current settings to the backing file
func (s *Store) Save() error {
	if s.path == "" {
		return fmt.Errorf("config store has no backing file")
	}
	cfg := s.Get()
	return Save(s.path, &cfg)
}

func diffSections(a, b Config) []string {
	var out []string
	if a.AI != b.AI {
		out = append(out, "ai")
	}
	if a.Poll != b.Poll {
		out = append(out, "poll")
	}
	if a.Merge != b.Merge {
		out = append(out, "merge")
	}
	if a.Log != b.Log {
		out = append(out, "log")
	}
	if a.History != b.History {
		out = append(out, "history")
	}
	return out
}
