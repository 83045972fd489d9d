package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elixir-editor/assist/internal/assist"
	"github.com/elixir-editor/assist/pkg/types"
)

type pathParams struct {
	Path string `json:"path"`
}

type mergeParams struct {
	Source    string `json:"source"`
	Candidate string `json:"candidate"`
}

// MergeResult is the result of merge
type MergeResult struct {
	Decision types.MergeDecision `json:"decision"`
	Diff     types.DiffSummary   `json:"diff"`
}

// GenerationResult tags the events a request will produce
type GenerationResult struct {
	Generation uint64 `json:"generation"`
	Started    bool   `json:"started"`
}

// StatusResult is the result of status
type StatusResult struct {
	Session    SessionStats `json:"session"`
	Assistant  assist.Stats `json:"assistant"`
	Generation uint64       `json:"generation"`
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo: ServerInfo{
			Name:    "elixir-assist",
			Version: s.version,
		},
		SessionID: s.session.ID,
		Methods:   s.methods,
	}, nil
}

func (s *Server) handleAnalyze(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p pathParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	reply, err := s.assistant.Handle(ctx, assist.RunAnalysis{Path: p.Path})
	if err != nil {
		return nil, err
	}
	return GenerationResult{Generation: reply.Generation, Started: reply.Started}, nil
}

func (s *Server) handleMerge(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p mergeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	decision, diff := s.assistant.MergeText(p.Source, p.Candidate)
	return MergeResult{Decision: decision, Diff: diff}, nil
}

func (s *Server) handlePending(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p pathParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.assistant.Pending(p.Path)
}

func (s *Server) handleApply(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p pathParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	reply, err := s.assistant.Handle(ctx, assist.Apply{Path: p.Path})
	if err != nil {
		return nil, err
	}
	return reply.Applied, nil
}

func (s *Server) handleCancel(ctx context.Context, params json.RawMessage) (interface{}, error) {
	reply, err := s.assistant.Handle(ctx, assist.Cancel{})
	if err != nil {
		return nil, err
	}
	return GenerationResult{Generation: reply.Generation}, nil
}

func (s *Server) handleSaved(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p pathParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	reply, err := s.assistant.Handle(ctx, assist.Saved{Path: p.Path})
	if err != nil {
		return nil, err
	}
	return GenerationResult{Generation: reply.Generation, Started: reply.Started}, nil
}

func (s *Server) handleStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return StatusResult{
		Session:    s.session.Stats(),
		Assistant:  s.assistant.Stats(),
		Generation: s.assistant.Generation(),
	}, nil
}

func (s *Server) handleShutdown(ctx context.Context, params json.RawMessage) (interface{}, error) {
	s.done = true
	return nil, nil
}
