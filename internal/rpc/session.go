package rpc

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SESSION TRACKING
// =============================================================================

// Session tracks requests for one editor connection
type Session struct {
	ID        string
	StartedAt time.Time

	mu           sync.Mutex
	requests     int
	methods      map[string]int
	filesTouched map[string]bool
	errors       int
	lastError    string
}

// SessionStats is a snapshot of a Session
type SessionStats struct {
	ID           string         `json:"id"`
	StartedAt    time.Time      `json:"started_at"`
	Requests     int            `json:"requests"`
	Methods      map[string]int `json:"methods"`
	FilesTouched []string       `json:"files_touched,omitempty"`
	Errors       int            `json:"errors"`
	LastError    string         `json:"last_error,omitempty"`
}

func newSession() *Session {
	return &Session{
		ID:           uuid.New().String(),
		StartedAt:    time.Now(),
		methods:      make(map[string]int),
		filesTouched: make(map[string]bool),
	}
}

// track records a request and any file path in its params
func (s *Session) track(method string, params json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests++
	s.methods[method]++

	var p pathParams
	if len(params) > 0 && json.Unmarshal(params, &p) == nil && p.Path != "" {
		s.filesTouched[p.Path] = true
	}
}

func (s *Session) trackError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
	s.lastError = err.Error()
}

// Stats returns a snapshot
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	methods := make(map[string]int, len(s.methods))
	for m, n := range s.methods {
		methods[m] = n
	}
	files := make([]string, 0, len(s.filesTouched))
	for f := range s.filesTouched {
		files = append(files, f)
	}
	sort.Strings(files)

	return SessionStats{
		ID:           s.ID,
		StartedAt:    s.StartedAt,
		Requests:     s.requests,
		Methods:      methods,
		FilesTouched: files,
		Errors:       s.errors,
		LastError:    s.lastError,
	}
}
