// Package job drives one remote generation job from creation to a terminal
// state, surfacing partial output while it polls.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/elixir-editor/assist/internal/logging"
	"github.com/elixir-editor/assist/internal/output"
	"github.com/elixir-editor/assist/internal/replicate"
	"github.com/elixir-editor/assist/pkg/types"
)

const (
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 60
)

// Transport is the subset of the prediction API the runner needs
type Transport interface {
	CreatePrediction(ctx context.Context, req *replicate.PredictionRequest) (*replicate.Prediction, error)
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
}

// Options configure a Runner. Zero values take the defaults.
type Options struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	Interval     time.Duration
	MaxAttempts  int
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// EventType tags runner events
type EventType int

const (
	EventPartial EventType = iota
	EventCompleted
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventPartial:
		return "partial"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one update from an invocation
type Event struct {
	Type         EventType
	Generation   uint64
	PredictionID string
	Text         string
	State        types.JobState
	Attempts     int
	Err          error
}

// Result is the outcome of one invocation
type Result struct {
	Generation   uint64
	PredictionID string
	Text         string
	State        types.JobState
	Attempts     int
}

// Runner creates and polls generation jobs. Each Start supersedes the
// previous invocation: its context is cancelled and its generation goes stale.
type Runner struct {
	transport Transport
	opts      Options

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
}

// NewRunner creates a runner over transport
func NewRunner(transport Transport, opts Options) *Runner {
	return &Runner{
		transport: transport,
		opts:      opts.withDefaults(),
	}
}

// Options returns the effective options
func (r *Runner) Options() Options {
	return r.opts
}

// Generation returns the generation of the most recent invocation
func (r *Runner) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// IsCurrent reports whether gen is still the latest invocation
func (r *Runner) IsCurrent(gen uint64) bool {
	return r.Generation() == gen
}

// begin bumps the generation and cancels whatever was in flight
func (r *Runner) begin(ctx context.Context) (context.Context, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	r.generation++
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	return ctx, r.generation
}

func (r *Runner) end(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation == gen && r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// Cancel stops the in-flight invocation, if any. Its loop ends as Cancelled.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.generation++
}

// Start runs prompt in the background. The channel receives partial events
// followed by exactly one terminal event, then closes. Callers must drain it.
func (r *Runner) Start(ctx context.Context, prompt string) (uint64, <-chan Event) {
	ctx, gen := r.begin(ctx)
	events := make(chan Event, 8)

	go func() {
		defer close(events)
		defer r.end(gen)

		emit := func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		res, err := r.run(ctx, gen, prompt, emit)
		final := Event{
			Generation:   gen,
			PredictionID: res.PredictionID,
			Text:         res.Text,
			State:        res.State,
			Attempts:     res.Attempts,
			Err:          err,
		}
		if err != nil {
			final.Type = EventFailed
		} else {
			final.Type = EventCompleted
		}
		events <- final
	}()

	return gen, events
}

// Run executes prompt synchronously. onPartial, if set, sees each new partial text.
func (r *Runner) Run(ctx context.Context, prompt string, onPartial func(string)) (Result, error) {
	ctx, gen := r.begin(ctx)
	defer r.end(gen)

	return r.run(ctx, gen, prompt, func(ev Event) {
		if onPartial != nil {
			onPartial(ev.Text)
		}
	})
}

func (r *Runner) run(ctx context.Context, gen uint64, prompt string, emit func(Event)) (Result, error) {
	defer logging.Trace("job.run")()

	res := Result{Generation: gen, State: types.JobCreated}
	fail := func(err error) (Result, error) {
		res.State = StateOf(err)
		logging.Info("job gen=%d id=%s ended %s after %d attempts: %v", gen, res.PredictionID, res.State, res.Attempts, err)
		return res, err
	}

	pred, err := r.transport.CreatePrediction(ctx, r.request(prompt))
	if err != nil {
		if r.abandoned(ctx, gen) {
			return fail(ErrCancelled)
		}
		return fail(fmt.Errorf("%w: %w", ErrInvocationFailure, err))
	}
	if pred == nil || pred.ID == "" {
		return fail(ErrNoIDReturned)
	}

	res.PredictionID = pred.ID
	res.State = types.JobPolling
	logging.Info("job gen=%d created prediction %s", gen, pred.ID)

	var ps types.PollState
	for ps.Attempts < r.opts.MaxAttempts {
		if r.abandoned(ctx, gen) {
			return fail(ErrCancelled)
		}

		ps.Attempts++
		res.Attempts = ps.Attempts

		p, err := r.transport.GetPrediction(ctx, pred.ID)
		if err != nil {
			if r.abandoned(ctx, gen) {
				return fail(ErrCancelled)
			}
			return fail(&PollTransportError{Attempt: ps.Attempts, Err: err})
		}
		// a newer invocation owns the output now
		if r.abandoned(ctx, gen) {
			return fail(ErrCancelled)
		}

		if p.HasOutput() {
			if text := output.ExtractText(p.Output); text != "" {
				cleaned := output.Clean(text)
				if cleaned != ps.LastOutputText {
					ps.LastOutputText = cleaned
					res.Text = cleaned
					emit(Event{
						Type:         EventPartial,
						Generation:   gen,
						PredictionID: pred.ID,
						Text:         cleaned,
						State:        types.JobPolling,
						Attempts:     ps.Attempts,
					})
				}
			}
		}

		if p.Status.IsTerminal() {
			if p.Status == types.StatusSucceeded {
				res.State = types.JobSucceeded
				res.Text = ps.LastOutputText
				logging.Info("job gen=%d id=%s succeeded after %d attempts", gen, pred.ID, ps.Attempts)
				return res, nil
			}
			return fail(&JobFailedError{Message: failureMessage(p)})
		}

		logging.Debug("job gen=%d id=%s status=%s attempt=%d", gen, pred.ID, p.Status, ps.Attempts)
		if ps.Attempts < r.opts.MaxAttempts {
			if err := sleep(ctx, r.opts.Interval); err != nil {
				return fail(ErrCancelled)
			}
		}
	}

	return fail(ErrTimedOut)
}

// failureMessage is the server's error text, or a default for the status
func failureMessage(p *replicate.Prediction) string {
	if p.Error != "" {
		return p.Error
	}
	if p.Status == types.StatusCanceled {
		return "Prediction canceled"
	}
	return "Prediction failed"
}

func (r *Runner) request(prompt string) *replicate.PredictionRequest {
	return &replicate.PredictionRequest{
		Version: r.opts.Model,
		Input: replicate.PredictionInput{
			Prompt:       prompt,
			SystemPrompt: r.opts.SystemPrompt,
			MaxTokens:    r.opts.MaxTokens,
		},
		Stream: true,
	}
}

func (r *Runner) abandoned(ctx context.Context, gen uint64) bool {
	return ctx.Err() != nil || !r.IsCurrent(gen)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
