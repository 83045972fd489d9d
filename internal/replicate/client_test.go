package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elixir-editor/assist/pkg/types"
)

func setupServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/", "tok-123")
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("", "")
	assert.Error(t, err)

	c, err := NewClient("", "tok")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.BaseURL)
}

func TestCreatePrediction(t *testing.T) {
	var got PredictionRequest
	c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/predictions", r.URL.Path)
		assert.Equal(t, "Token tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p1","status":"starting"}`))
	})

	pred, err := c.CreatePrediction(context.Background(), &PredictionRequest{
		Version: "anthropic/claude-3.7-sonnet",
		Input:   PredictionInput{Prompt: "hi", SystemPrompt: "sys", MaxTokens: 4096},
		Stream:  true,
	})

	require.NoError(t, err)
	assert.Equal(t, "p1", pred.ID)
	assert.Equal(t, types.StatusStarting, pred.Status)
	assert.False(t, pred.HasOutput())

	assert.Equal(t, "anthropic/claude-3.7-sonnet", got.Version)
	assert.Equal(t, "hi", got.Input.Prompt)
	assert.Equal(t, "sys", got.Input.SystemPrompt)
	assert.Equal(t, 4096, got.Input.MaxTokens)
	assert.True(t, got.Stream)
}

func TestGetPrediction(t *testing.T) {
	c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/predictions/p1", r.URL.Path)
		assert.Equal(t, "Token tok-123", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"p1","status":"processing","output":["a","b"]}`))
	})

	pred, err := c.GetPrediction(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, pred.Status)
	assert.True(t, pred.HasOutput())
	assert.JSONEq(t, `["a","b"]`, string(pred.Output))
	assert.Equal(t, "p1", pred.ID)
}

func TestGetPrediction_NullOutput(t *testing.T) {
	c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p1","status":"processing","output":null}`))
	})

	pred, err := c.GetPrediction(context.Background(), "p1")

	require.NoError(t, err)
	assert.False(t, pred.HasOutput())
}

func TestAPIError(t *testing.T) {
	c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid token."}`))
	})

	_, err := c.GetPrediction(context.Background(), "p1")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, `API error (401 Unauthorized): {"detail":"Invalid token."}`, apiErr.Error())
}

func TestDecodeError(t *testing.T) {
	c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := c.CreatePrediction(context.Background(), &PredictionRequest{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestContextCancelled(t *testing.T) {
	c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetPrediction(ctx, "p1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
