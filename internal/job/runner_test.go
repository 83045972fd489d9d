package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elixir-editor/assist/internal/replicate"
	"github.com/elixir-editor/assist/pkg/types"
)

// fakeTransport replays scripted poll responses
type fakeTransport struct {
	mu        sync.Mutex
	createErr error
	createID  string
	polls     []poll
	// block makes every poll wait for the context
	block   bool
	calls   int
	lastReq *replicate.PredictionRequest
}

type poll struct {
	status types.PredictionStatus
	output string // raw JSON, "" for none
	errMsg string
	err    error
}

func (f *fakeTransport) CreatePrediction(ctx context.Context, req *replicate.PredictionRequest) (*replicate.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &replicate.Prediction{ID: f.createID, Status: types.StatusStarting}, nil
}

func (f *fakeTransport) GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, fmt.Errorf("failed to send request: %w", ctx.Err())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.polls[len(f.polls)-1]
	if n <= len(f.polls) {
		p = f.polls[n-1]
	}
	if p.err != nil {
		return nil, p.err
	}
	pred := &replicate.Prediction{ID: id, Status: p.status, Error: p.errMsg}
	if p.output != "" {
		pred.Output = json.RawMessage(p.output)
	}
	return pred, nil
}

func (f *fakeTransport) pollCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func setupRunner(t *testing.T, f *fakeTransport, maxAttempts int) *Runner {
	t.Helper()
	if f.createID == "" {
		f.createID = "pred-1"
	}
	return NewRunner(f, Options{Interval: time.Millisecond, MaxAttempts: maxAttempts})
}

func collect(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

// =============================================================================
// SUCCESS PATHS
// =============================================================================

func TestRun_PartialThenFinal(t *testing.T) {
	f := &fakeTransport{polls: []poll{
		{status: types.StatusProcessing},
		{status: types.StatusProcessing, output: `"partial"`},
		{status: types.StatusSucceeded, output: `"final"`},
	}}
	r := setupRunner(t, f, 60)

	var updates []string
	res, err := r.Run(context.Background(), "prompt", func(text string) {
		updates = append(updates, text)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"partial", "final"}, updates)
	assert.Equal(t, types.JobSucceeded, res.State)
	assert.Equal(t, "final", res.Text)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "pred-1", res.PredictionID)
}

func TestStart_EventSequence(t *testing.T) {
	f := &fakeTransport{polls: []poll{
		{status: types.StatusProcessing},
		{status: types.StatusProcessing, output: `"partial"`},
		{status: types.StatusSucceeded, output: `"final"`},
	}}
	r := setupRunner(t, f, 60)

	gen, ch := r.Start(context.Background(), "prompt")
	events := collect(ch)

	require.Len(t, events, 3)
	assert.Equal(t, EventPartial, events[0].Type)
	assert.Equal(t, "partial", events[0].Text)
	assert.Equal(t, EventPartial, events[1].Type)
	assert.Equal(t, "final", events[1].Text)
	assert.Equal(t, EventCompleted, events[2].Type)
	assert.Equal(t, types.JobSucceeded, events[2].State)
	assert.Equal(t, "final", events[2].Text)
	for _, ev := range events {
		assert.Equal(t, gen, ev.Generation)
	}
}

func TestRun_UnchangedOutputNotReemitted(t *testing.T) {
	f := &fakeTransport{polls: []poll{
		{status: types.StatusProcessing, output: `["a"]`},
		{status: types.StatusProcessing, output: `["a"]`},
		{status: types.StatusSucceeded, output: `["a", "b"]`},
	}}
	r := setupRunner(t, f, 60)

	var updates []string
	res, err := r.Run(context.Background(), "p", func(text string) { updates = append(updates, text) })

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "ab"}, updates)
	assert.Equal(t, "ab", res.Text)
}

func TestRun_OutputIsCleaned(t *testing.T) {
	f := &fakeTransport{polls: []poll{
		{status: types.StatusSucceeded, output: `"` + "```go\\nx := 1\\n```" + `"`},
	}}
	r := setupRunner(t, f, 60)

	res, err := r.Run(context.Background(), "p", nil)

	require.NoError(t, err)
	assert.Equal(t, "x := 1\n", res.Text)
}

func TestRun_RequestShape(t *testing.T) {
	f := &fakeTransport{polls: []poll{{status: types.StatusSucceeded}}}
	r := setupRunner(t, f, 60)

	_, err := r.Run(context.Background(), "the prompt", nil)

	require.NoError(t, err)
	require.NotNil(t, f.lastReq)
	assert.Equal(t, DefaultModel, f.lastReq.Version)
	assert.Equal(t, "the prompt", f.lastReq.Input.Prompt)
	assert.Equal(t, DefaultSystemPrompt, f.lastReq.Input.SystemPrompt)
	assert.Equal(t, DefaultMaxTokens, f.lastReq.Input.MaxTokens)
	assert.True(t, f.lastReq.Stream)
}

// =============================================================================
// FAILURE PATHS
// =============================================================================

func TestRun_TimesOut(t *testing.T) {
	f := &fakeTransport{polls: []poll{{status: types.StatusProcessing}}}
	r := setupRunner(t, f, 3)

	res, err := r.Run(context.Background(), "p", nil)

	assert.True(t, errors.Is(err, ErrTimedOut))
	assert.Equal(t, types.JobTimedOut, res.State)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, f.pollCalls())
}

func TestStart_TimeoutEvent(t *testing.T) {
	f := &fakeTransport{polls: []poll{{status: types.StatusStarting}}}
	r := setupRunner(t, f, 2)

	_, ch := r.Start(context.Background(), "p")
	events := collect(ch)

	require.Len(t, events, 1)
	assert.Equal(t, EventFailed, events[0].Type)
	assert.Equal(t, types.JobTimedOut, events[0].State)
	assert.ErrorIs(t, events[0].Err, ErrTimedOut)
}

func TestRun_JobFailed(t *testing.T) {
	tests := []struct {
		name   string
		errMsg string
		want   string
	}{
		{"server message", "CUDA out of memory", "CUDA out of memory"},
		{"default message", "", "Prediction failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeTransport{polls: []poll{{status: types.StatusFailed, errMsg: tt.errMsg}}}
			r := setupRunner(t, f, 60)

			res, err := r.Run(context.Background(), "p", nil)

			var failed *JobFailedError
			require.True(t, errors.As(err, &failed))
			assert.Equal(t, tt.want, failed.Message)
			assert.Equal(t, types.JobFailed, res.State)
		})
	}
}

func TestRun_ServerCanceled(t *testing.T) {
	f := &fakeTransport{polls: []poll{
		{status: types.StatusProcessing, output: `"partial"`},
		{status: types.StatusCanceled},
	}}
	r := setupRunner(t, f, 60)

	res, err := r.Run(context.Background(), "p", nil)

	var failed *JobFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "Prediction canceled", failed.Message)
	assert.False(t, errors.Is(err, ErrTimedOut))
	assert.Equal(t, types.JobFailed, res.State)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, f.pollCalls())
	assert.Equal(t, "partial", res.Text)
}

func TestRun_PollTransportErrorIsTerminal(t *testing.T) {
	boom := errors.New("connection reset")
	f := &fakeTransport{polls: []poll{
		{status: types.StatusProcessing, output: `"partial"`},
		{err: boom},
		{status: types.StatusSucceeded, output: `"never"`},
	}}
	r := setupRunner(t, f, 60)

	res, err := r.Run(context.Background(), "p", nil)

	var pollErr *PollTransportError
	require.True(t, errors.As(err, &pollErr))
	assert.Equal(t, 2, pollErr.Attempt)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "streaming error")
	assert.Equal(t, types.JobTransportError, res.State)
	assert.Equal(t, "partial", res.Text)
	assert.Equal(t, 2, f.pollCalls())
}

func TestRun_CreateFailures(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		apiErr := &replicate.APIError{StatusCode: 401, Body: "nope"}
		f := &fakeTransport{createErr: apiErr}
		r := setupRunner(t, f, 60)

		res, err := r.Run(context.Background(), "p", nil)

		assert.ErrorIs(t, err, ErrInvocationFailure)
		var got *replicate.APIError
		assert.True(t, errors.As(err, &got))
		assert.Equal(t, types.JobFailed, res.State)
		assert.Equal(t, 0, f.pollCalls())
	})

	t.Run("no id", func(t *testing.T) {
		f := &fakeTransport{}
		r := NewRunner(f, Options{Interval: time.Millisecond})

		res, err := r.Run(context.Background(), "p", nil)

		assert.ErrorIs(t, err, ErrNoIDReturned)
		assert.Equal(t, types.JobFailed, res.State)
	})
}

// =============================================================================
// GENERATIONS
// =============================================================================

func TestStart_SupersedesPrevious(t *testing.T) {
	f := &fakeTransport{createID: "p", block: true}
	r := NewRunner(f, Options{Interval: time.Millisecond})

	gen1, ch1 := r.Start(context.Background(), "first")
	gen2, ch2 := r.Start(context.Background(), "second")

	assert.Equal(t, gen1+1, gen2)
	assert.False(t, r.IsCurrent(gen1))
	assert.True(t, r.IsCurrent(gen2))

	first := collect(ch1)
	require.Len(t, first, 1)
	assert.Equal(t, EventFailed, first[0].Type)
	assert.Equal(t, types.JobCancelled, first[0].State)
	assert.ErrorIs(t, first[0].Err, ErrCancelled)

	r.Cancel()
	second := collect(ch2)
	require.Len(t, second, 1)
	assert.Equal(t, types.JobCancelled, second[0].State)
}

func TestRun_CallerContextCancelled(t *testing.T) {
	f := &fakeTransport{createID: "p", block: true}
	r := NewRunner(f, Options{Interval: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := r.Run(ctx, "p", nil)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, types.JobCancelled, res.State)
}

// =============================================================================
// HELPERS
// =============================================================================

func TestStateOf(t *testing.T) {
	assert.Equal(t, types.JobSucceeded, StateOf(nil))
	assert.Equal(t, types.JobTimedOut, StateOf(ErrTimedOut))
	assert.Equal(t, types.JobCancelled, StateOf(ErrCancelled))
	assert.Equal(t, types.JobTransportError, StateOf(&PollTransportError{Err: errors.New("x")}))
	assert.Equal(t, types.JobFailed, StateOf(&JobFailedError{Message: "x"}))
	assert.Equal(t, types.JobFailed, StateOf(ErrNoIDReturned))
	assert.Equal(t, types.JobFailed, StateOf(fmt.Errorf("%w: boom", ErrInvocationFailure)))
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("/work/src/main.py", "print(1)")

	want := "\nFile: main.py\nContent:\n```py\nprint(1)\n```\n\n" +
		"Please re-write the code making improvements. Only provide the refactored code, no explanations or other text.\n"
	assert.Equal(t, want, got)
}

func TestOptionsDefaults(t *testing.T) {
	r := NewRunner(&fakeTransport{}, Options{})
	opts := r.Options()

	assert.Equal(t, DefaultInterval, opts.Interval)
	assert.Equal(t, DefaultMaxAttempts, opts.MaxAttempts)
	assert.Equal(t, DefaultModel, opts.Model)
	assert.Equal(t, DefaultMaxTokens, opts.MaxTokens)
}
