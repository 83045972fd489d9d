// Package assist runs the analyze, merge and apply workflow behind a command
// channel. Hosts submit commands and read events; the assistant owns the job
// runner, the merger and whatever merge is waiting to be applied.
package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/elixir-editor/assist/internal/buffer"
	"github.com/elixir-editor/assist/internal/config"
	"github.com/elixir-editor/assist/internal/job"
	"github.com/elixir-editor/assist/internal/logging"
	"github.com/elixir-editor/assist/internal/merge"
	"github.com/elixir-editor/assist/internal/replicate"
	"github.com/elixir-editor/assist/internal/storage"
	"github.com/elixir-editor/assist/pkg/types"
)

var (
	ErrNotReady    = errors.New("AI integration is disabled or missing API token")
	ErrNoContent   = errors.New("no file content to analyze")
	ErrNoPending   = errors.New("no pending changes to apply")
	ErrStaleBuffer = errors.New("buffer changed since the analysis ran")
	ErrClosed      = errors.New("assistant is closed")
)

// Opener resolves a path to the buffer holding it
type Opener func(path string) (buffer.Buffer, error)

// TransportFactory builds the prediction transport from the AI settings
type TransportFactory func(ai config.AIConfig) (job.Transport, error)

// ReplicateTransport is the default TransportFactory
func ReplicateTransport(ai config.AIConfig) (job.Transport, error) {
	return replicate.NewClient(ai.BaseURL, ai.APIToken)
}

func openFile(path string) (buffer.Buffer, error) {
	if path == "" {
		return nil, buffer.ErrNoBuffer
	}
	return buffer.NewFileBuffer(path), nil
}

// Option configures an Assistant
type Option func(*Assistant)

// WithOpener sets how paths become buffers. The default reads files.
func WithOpener(open Opener) Option {
	return func(a *Assistant) { a.open = open }
}

// WithTransport uses t for every job instead of building one from config
func WithTransport(t job.Transport) Option {
	return func(a *Assistant) {
		a.newTransport = func(config.AIConfig) (job.Transport, error) { return t, nil }
	}
}

func WithTransportFactory(f TransportFactory) Option {
	return func(a *Assistant) { a.newTransport = f }
}

// WithHistory records every job and merge
func WithHistory(h *storage.History) Option {
	return func(a *Assistant) { a.history = h }
}

// WithPending keeps pending merges in p instead of memory
func WithPending(p PendingStore) Option {
	return func(a *Assistant) { a.pending = p }
}

// Assistant serialises analyses for one editor session
type Assistant struct {
	store        *config.Store
	open         Opener
	newTransport TransportFactory
	history      *storage.History
	pending      PendingStore
	sub          *config.Subscription

	mu       sync.Mutex
	runner   *job.Runner
	stale    bool // job settings changed since the runner was built
	merger   *merge.Merger
	seq      uint64
	lastPath string
	shut     bool
	stats    Stats

	commands  chan Command
	events    chan Event
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	emitMu sync.RWMutex
	closed bool
}

// New creates an assistant reading its settings from store
func New(store *config.Store, opts ...Option) *Assistant {
	cfg := store.Get()
	a := &Assistant{
		store:        store,
		open:         openFile,
		newTransport: ReplicateTransport,
		pending:      newMemoryPending(),
		merger:       newMerger(cfg.Merge),
		commands:     make(chan Command, 16),
		events:       make(chan Event, 64),
		closing:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.sub = store.Subscribe(a.onConfigChange)
	return a
}

func newMerger(mc config.MergeConfig) *merge.Merger {
	return merge.NewMerger(merge.Thresholds{
		WholesaleLengthRatio: mc.WholesaleLengthRatio,
		WholesaleOverlap:     mc.WholesaleOverlap,
		LineOverlapFloor:     mc.LineOverlapFloor,
	})
}

func (a *Assistant) onConfigChange(c config.Change) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c.Touches("merge") {
		a.merger = newMerger(c.New.Merge)
		logging.Info("assist: merge thresholds now %+v", a.merger.Thresholds())
	}
	if c.Touches("ai") || c.Touches("poll") {
		a.stale = true
	}
}

// Events delivers partial, completed, failed and applied events. It closes
// after Close.
func (a *Assistant) Events() <-chan Event {
	return a.events
}

// Stats returns activity counters
func (a *Assistant) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Generation returns the generation of the latest analysis or cancel
func (a *Assistant) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seq
}

func (a *Assistant) isCurrent(gen uint64) bool {
	return a.Generation() == gen
}

// Submit queues cmd for Run
func (a *Assistant) Submit(cmd Command) error {
	select {
	case <-a.closing:
		return ErrClosed
	default:
	}
	select {
	case a.commands <- cmd:
		return nil
	case <-a.closing:
		return ErrClosed
	}
}

// Run executes submitted commands until ctx is done, then closes the assistant
func (a *Assistant) Run(ctx context.Context) error {
	defer a.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.closing:
			return nil
		case cmd := <-a.commands:
			if _, err := a.Handle(ctx, cmd); err != nil {
				logging.Warn("assist: %T: %v", cmd, err)
			}
		}
	}
}

// Handle executes one command. Errors are also reported as a failed event.
func (a *Assistant) Handle(ctx context.Context, cmd Command) (Reply, error) {
	var (
		reply Reply
		path  string
		err   error
	)

	switch c := cmd.(type) {
	case RunAnalysis:
		path = c.Path
		reply.Generation, err = a.Analyze(ctx, c.Path)
		reply.Started = err == nil
	case Saved:
		path = c.Path
		reply.Generation, reply.Started, err = a.Saved(ctx, c.Path)
	case Apply:
		path = c.Path
		var ev Event
		if ev, err = a.Apply(c.Path); err == nil {
			reply.Generation = ev.Generation
			reply.Applied = &ev
		}
	case Cancel:
		a.Cancel()
		reply.Generation = a.Generation()
	default:
		err = fmt.Errorf("unknown command %T", cmd)
	}

	if err != nil {
		a.noteFailure(err)
		a.emit(Event{
			Kind:       EventFailed,
			Generation: a.Generation(),
			Path:       path,
			Error:      err.Error(),
			Err:        err,
		})
	}
	return reply, err
}

// Analyze starts a rewrite of the buffer at path, superseding any analysis
// still in flight. It returns the generation that tags the resulting events.
func (a *Assistant) Analyze(ctx context.Context, path string) (uint64, error) {
	defer logging.Trace("assist.Analyze")()

	cfg := a.store.Get()
	if !cfg.AI.Ready() {
		return 0, ErrNotReady
	}

	buf, err := a.open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open buffer: %w", err)
	}
	source, err := buf.ReadCurrentText()
	if err != nil {
		return 0, fmt.Errorf("failed to read buffer: %w", err)
	}
	if strings.TrimSpace(source) == "" {
		return 0, ErrNoContent
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.shut {
		return 0, ErrClosed
	}
	runner, err := a.runnerLocked(cfg)
	if err != nil {
		return 0, err
	}

	a.seq++
	gen := a.seq
	a.lastPath = buf.Name()
	a.stats.Analyses++

	_, jobEvents := runner.Start(ctx, job.BuildPrompt(buf.Name(), source))
	logging.Info("assist: analysis gen=%d started for %s (%d bytes)", gen, buf.Name(), len(source))

	a.wg.Add(1)
	go a.follow(gen, buf.Name(), source, cfg.AI.ModelVersion, a.merger, jobEvents)

	return gen, nil
}

func (a *Assistant) runnerLocked(cfg config.Config) (*job.Runner, error) {
	if a.runner != nil && !a.stale {
		return a.runner, nil
	}
	if a.runner != nil {
		a.runner.Cancel()
	}

	transport, err := a.newTransport(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	a.runner = job.NewRunner(transport, job.Options{
		Model:        cfg.AI.ModelVersion,
		SystemPrompt: cfg.AI.SystemPrompt,
		MaxTokens:    cfg.AI.MaxTokens,
		Interval:     cfg.Poll.Interval(),
		MaxAttempts:  cfg.Poll.MaxAttempts,
	})
	a.stale = false
	return a.runner, nil
}

// follow drains one job's events
func (a *Assistant) follow(gen uint64, path, source, model string, merger *merge.Merger, jobEvents <-chan job.Event) {
	defer a.wg.Done()

	for ev := range jobEvents {
		switch ev.Type {
		case job.EventPartial:
			if !a.isCurrent(gen) {
				continue
			}
			a.emit(Event{
				Kind:       EventPartial,
				Generation: gen,
				Path:       path,
				Text:       ev.Text,
				State:      ev.State.String(),
				Attempts:   ev.Attempts,
			})
		case job.EventCompleted:
			a.complete(gen, path, source, model, merger, ev)
		case job.EventFailed:
			a.recordJob(gen, path, model, ev)
			a.noteFailure(ev.Err)
			a.emit(Event{
				Kind:       EventFailed,
				Generation: gen,
				Path:       path,
				State:      ev.State.String(),
				Attempts:   ev.Attempts,
				Error:      ev.Err.Error(),
				Err:        ev.Err,
			})
		}
	}
}

func (a *Assistant) complete(gen uint64, path, source, model string, merger *merge.Merger, ev job.Event) {
	jobID := a.recordJob(gen, path, model, ev)
	if !a.isCurrent(gen) {
		logging.Debug("assist: dropping result of superseded analysis gen=%d", gen)
		return
	}

	decision := merger.Decide(source, ev.Text)
	diff := merge.Preview(source, decision.Text)

	pm := &types.PendingMerge{
		Path:     path,
		JobID:    jobID,
		Strategy: decision.Strategy,
		Overlap:  decision.Overlap,
		Source:   source,
		Merged:   decision.Text,
	}
	if a.history != nil {
		rec := &types.MergeRecord{
			JobID:     jobID,
			Path:      path,
			Strategy:  decision.Strategy,
			Overlap:   decision.Overlap,
			Source:    source,
			Candidate: ev.Text,
			Merged:    decision.Text,
		}
		if err := a.history.RecordMerge(rec); err != nil {
			logging.Warn("assist: failed to record merge: %v", err)
		} else {
			pm.MergeID = rec.ID
		}
	}

	var err error
	if decision.Text != source {
		err = a.pending.SavePending(pm)
	} else {
		err = a.pending.DeletePending(path)
	}
	if err != nil {
		logging.Warn("assist: failed to update pending merge for %s: %v", path, err)
	}

	a.mu.Lock()
	a.stats.Completed++
	a.mu.Unlock()

	logging.Info("assist: analysis gen=%d merged with %s strategy (+%d -%d lines)",
		gen, decision.Strategy, diff.Inserted, diff.Deleted)

	a.emit(Event{
		Kind:       EventCompleted,
		Generation: gen,
		Path:       path,
		Text:       ev.Text,
		Decision:   &decision,
		Diff:       &diff,
		MergeID:    pm.MergeID,
		State:      ev.State.String(),
		Attempts:   ev.Attempts,
	})
}

func (a *Assistant) recordJob(gen uint64, path, model string, ev job.Event) string {
	if a.history == nil {
		return ""
	}
	rec := &types.JobRecord{
		PredictionID: ev.PredictionID,
		Generation:   gen,
		Path:         path,
		Model:        model,
		State:        ev.State.String(),
		Attempts:     ev.Attempts,
		Output:       ev.Text,
		FinishedAt:   time.Now(),
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	if err := a.history.RecordJob(rec); err != nil {
		logging.Warn("assist: failed to record job: %v", err)
		return ""
	}
	return rec.ID
}

// MergeText reconciles candidate into source with the current thresholds,
// without touching any buffer.
func (a *Assistant) MergeText(source, candidate string) (types.MergeDecision, types.DiffSummary) {
	a.mu.Lock()
	merger := a.merger
	a.mu.Unlock()

	decision := merger.Decide(source, candidate)
	return decision, merge.Preview(source, decision.Text)
}

// Cancel stops the in-flight analysis. Its failed event reports Cancelled.
func (a *Assistant) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	if a.runner != nil {
		a.runner.Cancel()
	}
	logging.Info("assist: cancelled, generation now %d", a.seq)
}

// Saved runs an analysis when analyze-on-save is enabled. The bool reports
// whether one was started.
func (a *Assistant) Saved(ctx context.Context, path string) (uint64, bool, error) {
	if !a.store.Get().AI.AnalyzeOnSave {
		return 0, false, nil
	}
	gen, err := a.Analyze(ctx, path)
	if err != nil {
		return 0, false, err
	}
	return gen, true, nil
}

// Pending returns the merge waiting for path, or for the last analyzed
// buffer when path is empty.
func (a *Assistant) Pending(path string) (*types.PendingMerge, error) {
	if path == "" {
		a.mu.Lock()
		path = a.lastPath
		a.mu.Unlock()
	}
	if path == "" {
		return nil, ErrNoPending
	}

	pm, err := a.pending.GetPending(path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w for %s", ErrNoPending, path)
	}
	return pm, err
}

// Apply writes the pending merge into its buffer. The buffer must still hold
// the text the merge was computed against.
func (a *Assistant) Apply(path string) (Event, error) {
	defer logging.Trace("assist.Apply")()

	pm, err := a.Pending(path)
	if err != nil {
		return Event{}, err
	}

	buf, err := a.open(pm.Path)
	if err != nil {
		return Event{}, fmt.Errorf("failed to open buffer: %w", err)
	}
	current, err := buf.ReadCurrentText()
	if err != nil {
		return Event{}, fmt.Errorf("failed to read buffer: %w", err)
	}
	if current != pm.Source {
		return Event{}, fmt.Errorf("%w: %s", ErrStaleBuffer, pm.Path)
	}
	if err := buf.WriteText(pm.Merged); err != nil {
		return Event{}, fmt.Errorf("failed to write buffer: %w", err)
	}

	if err := a.pending.DeletePending(pm.Path); err != nil {
		logging.Warn("assist: failed to clear pending merge for %s: %v", pm.Path, err)
	}
	if a.history != nil && pm.MergeID != "" {
		if err := a.history.MarkApplied(pm.MergeID); err != nil {
			logging.Warn("assist: failed to mark merge %s applied: %v", pm.MergeID, err)
		}
	}

	a.mu.Lock()
	a.stats.Applied++
	gen := a.seq
	a.mu.Unlock()

	ev := Event{
		Kind:       EventApplied,
		Generation: gen,
		Path:       pm.Path,
		MergeID:    pm.MergeID,
		Decision:   &types.MergeDecision{Strategy: pm.Strategy, Text: pm.Merged, Overlap: pm.Overlap},
	}
	logging.Info("assist: applied %s merge to %s", pm.Strategy, pm.Path)
	a.emit(ev)
	return ev, nil
}

func (a *Assistant) noteFailure(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Failed++
	if err != nil {
		a.stats.LastError = err.Error()
	}
}

func (a *Assistant) emit(ev Event) {
	a.emitMu.RLock()
	defer a.emitMu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.events <- ev:
	case <-a.closing:
	}
}

// Close cancels any analysis, waits for its events and closes Events
func (a *Assistant) Close() {
	a.closeOnce.Do(func() {
		a.sub.Unsubscribe()

		a.mu.Lock()
		a.shut = true
		if a.runner != nil {
			a.runner.Cancel()
		}
		a.mu.Unlock()

		close(a.closing)
		a.wg.Wait()

		a.emitMu.Lock()
		a.closed = true
		close(a.events)
		a.emitMu.Unlock()
	})
}
