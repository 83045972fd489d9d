// Package replicate is a minimal client for the prediction endpoints of a
// Replicate-style inference service.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/elixir-editor/assist/internal/logging"
)

const (
	DefaultBaseURL  = "https://api.replicate.com"
	PredictionsPath = "/v1/predictions"
)

// Client talks to the prediction API. It sets no request timeout of its own;
// callers bound each call through the context.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	APIToken   string
}

// NewClient creates a client. An empty baseURL means the public service.
func NewClient(baseURL, apiToken string) (*Client, error) {
	if apiToken == "" {
		return nil, fmt.Errorf("replicate API token not set: set ELIXIR_ASSIST_API_TOKEN or ai.api_token in config")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		HTTPClient: &http.Client{},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIToken:   apiToken,
	}, nil
}

// CreatePrediction starts a generation job
func (c *Client) CreatePrediction(ctx context.Context, req *PredictionRequest) (*Prediction, error) {
	defer logging.Trace("replicate.CreatePrediction")()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+PredictionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	logging.Debug("replicate create: version=%s prompt_len=%d max_tokens=%d", req.Version, len(req.Input.Prompt), req.Input.MaxTokens)

	return c.do(httpReq)
}

// GetPrediction fetches the current state of a job
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	defer logging.Trace("replicate.GetPrediction")()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+PredictionsPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(httpReq)
}

func (c *Client) do(httpReq *http.Request) (*Prediction, error) {
	httpReq.Header.Set("Authorization", "Token "+c.APIToken)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.Warn("replicate %s %s: status %d", httpReq.Method, httpReq.URL.Path, resp.StatusCode)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var pred Prediction
	if err := json.Unmarshal(data, &pred); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	logging.Debug("replicate %s %s: id=%s status=%s output_len=%d", httpReq.Method, httpReq.URL.Path, pred.ID, pred.Status, len(pred.Output))
	return &pred, nil
}
