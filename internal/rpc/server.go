// Package rpc exposes the assistant to an editor over newline-delimited
// JSON-RPC 2.0 on stdio. Requests map onto assistant commands; assistant
// events go back as notifications named assist/<kind>.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/elixir-editor/assist/internal/assist"
	"github.com/elixir-editor/assist/internal/logging"
)

const ProtocolVersion = "1.0"

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeAssistError    = -32000
)

// Request is a JSON-RPC request. A nil ID marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Notification is a server-initiated message without an ID
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Error is a JSON-RPC error
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// InitializeResult is the result of initialize
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
	SessionID       string     `json:"sessionId"`
	Methods         []string   `json:"methods"`
}

// ServerInfo contains server information
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Handler serves one method
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// errInvalidParams marks handler errors caused by the request itself
var errInvalidParams = errors.New("invalid params")

// Server is the stdio command channel
type Server struct {
	assistant *assist.Assistant
	version   string
	in        io.Reader
	out       io.Writer

	outMu    sync.Mutex
	handlers map[string]Handler
	methods  []string
	session  *Session
	done     bool
}

// Option configures a Server
type Option func(*Server)

// WithIO replaces stdin and stdout
func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.in = in
		s.out = out
	}
}

// WithVersion sets the version reported by initialize
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server driving a
func NewServer(a *assist.Assistant, opts ...Option) *Server {
	s := &Server{
		assistant: a,
		version:   "dev",
		in:        os.Stdin,
		out:       os.Stdout,
		handlers:  make(map[string]Handler),
		session:   newSession(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerMethods()
	return s
}

func (s *Server) register(method string, h Handler) {
	s.handlers[method] = h
	s.methods = append(s.methods, method)
}

func (s *Server) registerMethods() {
	s.register("initialize", s.handleInitialize)
	s.register("analyze", s.handleAnalyze)
	s.register("merge", s.handleMerge)
	s.register("pending", s.handlePending)
	s.register("apply", s.handleApply)
	s.register("cancel", s.handleCancel)
	s.register("saved", s.handleSaved)
	s.register("status", s.handleStatus)
	s.register("shutdown", s.handleShutdown)
}

// Session returns the session tracker
func (s *Server) Session() *Session {
	return s.session
}

// Serve reads requests until shutdown, end of input or ctx is done. The
// assistant is closed before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	defer logging.Trace("rpc.Serve")()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		s.forwardEvents()
	}()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		// Increase buffer size for large buffers
		buf := make([]byte, 0, 1024*1024)
		scanner.Buffer(buf, 10*1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				err = <-scanErr
				break loop
			}
			if line == "" {
				continue
			}
			s.handleLine(ctx, line)
			if s.done {
				break loop
			}
		}
	}

	cancel()
	s.assistant.Close()
	<-forwarded

	if err != nil {
		return fmt.Errorf("failed to read requests: %w", err)
	}
	return nil
}

func (s *Server) handleLine(ctx context.Context, line string) {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		// no id to answer to
		logging.Warn("rpc: parse error: %v", err)
		s.session.trackError(err)
		return
	}
	s.handleRequest(ctx, &req)
}

func (s *Server) handleRequest(ctx context.Context, req *Request) {
	switch req.Method {
	case "initialized", "exit":
		// notifications, no response
		return
	}

	handler, ok := s.handlers[req.Method]
	if !ok {
		s.sendError(req.ID, CodeMethodNotFound, "Method not found", req.Method)
		return
	}

	s.session.track(req.Method, req.Params)

	result, err := handler(ctx, req.Params)
	if err != nil {
		code := CodeAssistError
		if errors.Is(err, errInvalidParams) {
			code = CodeInvalidParams
		}
		s.session.trackError(err)
		s.sendError(req.ID, code, err.Error(), req.Method)
		return
	}
	if req.ID != nil {
		s.sendResult(req.ID, result)
	}
}

func (s *Server) forwardEvents() {
	for ev := range s.assistant.Events() {
		s.send(Notification{
			JSONRPC: "2.0",
			Method:  "assist/" + string(ev.Kind),
			Params:  ev,
		})
	}
}

func (s *Server) sendResult(id interface{}, result interface{}) {
	if result == nil {
		result = struct{}{}
	}
	s.send(Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func (s *Server) sendError(id interface{}, code int, message string, data interface{}) {
	// Don't send error responses for notifications (null/nil ID)
	if id == nil {
		logging.Warn("rpc: error (no id): %s: %v", message, data)
		return
	}
	s.send(Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

func (s *Server) send(msg interface{}) {
	output, err := json.Marshal(msg)
	if err != nil {
		logging.Error("rpc: failed to encode message: %v", err)
		return
	}

	s.outMu.Lock()
	defer s.outMu.Unlock()
	if _, err := fmt.Fprintln(s.out, string(output)); err != nil {
		logging.Error("rpc: failed to write message: %v", err)
	}
}
