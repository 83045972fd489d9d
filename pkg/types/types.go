package types

import (
	"time"
)

// =============================================================================
// MERGE TYPES
// =============================================================================

// BlockKind identifies which structural pattern produced a block
type BlockKind string

const (
	BlockFunction BlockKind = "function"
	BlockLambda   BlockKind = "lambda"
	BlockClass    BlockKind = "class"
	BlockMethod   BlockKind = "method"
)

// CodeBlock is a named structural unit extracted from a buffer.
// FullText is always a literal substring of the buffer it came from.
type CodeBlock struct {
	Name     string    `json:"name"`
	Kind     BlockKind `json:"kind"`
	FullText string    `json:"full_text"`
	BodyText string    `json:"body_text"`
	Start    int       `json:"start"` // byte offset into the buffer
	End      int       `json:"end"`   // exclusive
}

// MergeStrategy tags the branch of the merge ladder that produced a result
type MergeStrategy string

const (
	StrategyUnchanged MergeStrategy = "unchanged"
	StrategyWholesale MergeStrategy = "wholesale"
	StrategyBlock     MergeStrategy = "block"
	StrategyLine      MergeStrategy = "line"
)

// MergeDecision is the outcome of one reconciliation
type MergeDecision struct {
	Strategy MergeStrategy `json:"strategy"`
	Text     string        `json:"text"`
	Overlap  float64       `json:"overlap"`
}

// DiffSummary describes how a merged buffer differs from the source
type DiffSummary struct {
	SourceLines int    `json:"source_lines"`
	MergedLines int    `json:"merged_lines"`
	Inserted    int    `json:"inserted"`
	Deleted     int    `json:"deleted"`
	Unified     string `json:"unified,omitempty"`
}

// Changed reports whether the diff contains any insertion or deletion
func (d DiffSummary) Changed() bool {
	return d.Inserted > 0 || d.Deleted > 0
}

// =============================================================================
// JOB TYPES
// =============================================================================

// PredictionStatus is the status string reported by the inference service
type PredictionStatus string

const (
	StatusStarting   PredictionStatus = "starting"
	StatusProcessing PredictionStatus = "processing"
	StatusSucceeded  PredictionStatus = "succeeded"
	StatusFailed     PredictionStatus = "failed"
	StatusCanceled   PredictionStatus = "canceled"
)

// IsTerminal reports whether the remote job will not change any more
func (s PredictionStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// JobState is the client-side state of one job invocation
type JobState int

const (
	JobCreated JobState = iota
	JobPolling
	JobSucceeded
	JobFailed
	JobTimedOut
	JobTransportError
	JobCancelled
)

// String returns a human-readable name for the job state
func (s JobState) String() string {
	switch s {
	case JobCreated:
		return "Created"
	case JobPolling:
		return "Polling"
	case JobSucceeded:
		return "Succeeded"
	case JobFailed:
		return "Failed"
	case JobTimedOut:
		return "TimedOut"
	case JobTransportError:
		return "TransportError"
	case JobCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// PollState is owned by exactly one in-flight invocation
type PollState struct {
	Attempts       int    `json:"attempts"`
	LastOutputText string `json:"last_output_text"`
}

// =============================================================================
// HISTORY TYPES
// =============================================================================

// JobRecord is the persisted summary of one job invocation
type JobRecord struct {
	ID           string    `json:"id"`
	PredictionID string    `json:"prediction_id,omitempty"`
	Generation   uint64    `json:"generation"`
	Path         string    `json:"path,omitempty"`
	Model        string    `json:"model"`
	State        string    `json:"state"`
	Attempts     int       `json:"attempts"`
	Error        string    `json:"error,omitempty"`
	Output       string    `json:"output,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// MergeRecord is the persisted summary of one merge
type MergeRecord struct {
	ID        string        `json:"id"`
	JobID     string        `json:"job_id,omitempty"`
	Path      string        `json:"path,omitempty"`
	Strategy  MergeStrategy `json:"strategy"`
	Overlap   float64       `json:"overlap"`
	Source    string        `json:"source,omitempty"`
	Candidate string        `json:"candidate,omitempty"`
	Merged    string        `json:"merged,omitempty"`
	Applied   bool          `json:"applied"`
	CreatedAt time.Time     `json:"created_at"`
}

// PendingMerge is a merge computed but not yet written to its buffer
type PendingMerge struct {
	Path      string        `json:"path"`
	MergeID   string        `json:"merge_id,omitempty"`
	JobID     string        `json:"job_id,omitempty"`
	Strategy  MergeStrategy `json:"strategy"`
	Overlap   float64       `json:"overlap"`
	Source    string        `json:"source"` // buffer text the merge was computed against
	Merged    string        `json:"merged"`
	CreatedAt time.Time     `json:"created_at"`
}
