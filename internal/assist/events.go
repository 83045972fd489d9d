package assist

import (
	"github.com/elixir-editor/assist/pkg/types"
)

// Command is one request to the assistant
type Command interface {
	command()
}

// RunAnalysis asks for a rewrite of the buffer at Path and merges the result
type RunAnalysis struct {
	Path string
}

// Apply writes the pending merge for Path back into its buffer. An empty
// Path means the most recently analyzed buffer.
type Apply struct {
	Path string
}

// Cancel stops the in-flight analysis
type Cancel struct{}

// Saved reports that the buffer at Path was written to disk
type Saved struct {
	Path string
}

func (RunAnalysis) command() {}
func (Apply) command()       {}
func (Cancel) command()      {}
func (Saved) command()       {}

// Reply is the synchronous outcome of a handled command. Generation tags the
// events the command will produce.
type Reply struct {
	Generation uint64 `json:"generation"`
	Started    bool   `json:"started"`
	Applied    *Event `json:"applied,omitempty"`
}

// EventKind tags assistant events
type EventKind string

const (
	EventPartial   EventKind = "partial"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventApplied   EventKind = "applied"
)

// Event is one update for the host. Generation identifies the analysis it
// belongs to; hosts drop events whose generation is no longer current.
type Event struct {
	Kind       EventKind            `json:"kind"`
	Generation uint64               `json:"generation"`
	Path       string               `json:"path,omitempty"`
	Text       string               `json:"text,omitempty"`
	Decision   *types.MergeDecision `json:"decision,omitempty"`
	Diff       *types.DiffSummary   `json:"diff,omitempty"`
	MergeID    string               `json:"merge_id,omitempty"`
	State      string               `json:"state,omitempty"`
	Attempts   int                  `json:"attempts,omitempty"`
	Error      string               `json:"error,omitempty"`

	Err error `json:"-"`
}

// Stats counts assistant activity
type Stats struct {
	Analyses  int    `json:"analyses"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Applied   int    `json:"applied"`
	LastError string `json:"last_error,omitempty"`
}
