package replicate

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elixir-editor/assist/pkg/types"
)

// PredictionInput is the model input of a text generation request
type PredictionInput struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	MaxTokens    int    `json:"max_tokens,omitempty"`
}

// PredictionRequest is the body of a create call
type PredictionRequest struct {
	Version string          `json:"version"`
	Input   PredictionInput `json:"input"`
	Stream  bool            `json:"stream"`
}

// Prediction is the service's view of a job. Every field may be absent.
type Prediction struct {
	ID     string                 `json:"id,omitempty"`
	Status types.PredictionStatus `json:"status,omitempty"`
	Output json.RawMessage        `json:"output,omitempty"`
	Error  string                 `json:"error,omitempty"`
	Detail string                 `json:"detail,omitempty"`
}

// HasOutput reports whether the response carried a non-null output field
func (p *Prediction) HasOutput() bool {
	return len(p.Output) > 0 && string(p.Output) != "null"
}

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}
