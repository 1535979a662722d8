package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/ironsheep/qr-tools-mcp/internal/telemetry"
)

// JSON-RPC error codes
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeToolFailed     = -32000
)

// ProtocolVersion is the MCP revision announced by initialize.
const ProtocolVersion = "2024-11-05"

// DefaultMaxLineBytes bounds a single request line. It leaves room for the
// largest inline image plus the envelope around it.
const DefaultMaxLineBytes = 16 * 1024 * 1024

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *MCPError       `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Options configures a Server.
type Options struct {
	Name    string
	Version string
	Logger  *slog.Logger
	// Observer records tool calls; nil disables telemetry.
	Observer *telemetry.Observer
	// MaxLineBytes bounds a request line; longer lines are dropped.
	MaxLineBytes int
}

// Server handles MCP protocol communication
type Server struct {
	registry *Registry
	name     string
	version  string
	logger   *slog.Logger
	observer *telemetry.Observer
	maxLine  int
}

// New creates a server dispatching tools/call to registry.
func New(registry *Registry, opts Options) *Server {
	s := &Server{
		registry: registry,
		name:     opts.Name,
		version:  opts.Version,
		logger:   opts.Logger,
		observer: opts.Observer,
		maxLine:  opts.MaxLineBytes,
	}
	if s.name == "" {
		s.name = "qrmax"
	}
	if s.version == "" {
		s.version = "dev"
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.maxLine <= 0 {
		s.maxLine = DefaultMaxLineBytes
	}
	return s
}

// Run reads newline-delimited requests from r and writes one response line
// per request carrying an id to w. Each request is answered before the next
// line is read. Run returns nil at end of input, or ctx.Err() once ctx is done.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReaderSize(r, 64*1024)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := s.readLine(reader)
		if len(line) > 0 {
			if resp := s.handleLine(ctx, line); resp != nil {
				if encErr := encoder.Encode(resp); encErr != nil {
					return fmt.Errorf("write response: %w", encErr)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, errLineTooLong) {
			return fmt.Errorf("read request: %w", err)
		}
	}
}

var errLineTooLong = errors.New("request line too long")

// readLine returns the next line without its terminator. A line longer than
// the limit is consumed and discarded, and errLineTooLong is returned.
func (s *Server) readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > s.maxLine+1 {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			s.logger.Warn("dropping oversized request line", "limit", s.maxLine)
			if err == nil {
				err = errLineTooLong
			}
			return nil, err
		}
		return bytes.TrimRight(buf, "\r\n"), err
	}
}

// handleLine parses one input line. Lines that are not valid JSON, or that
// carry no id member, produce no response. An id of null still counts.
func (s *Server) handleLine(ctx context.Context, line []byte) *MCPResponse {
	if !gjson.ValidBytes(line) {
		s.logger.Debug("dropping unparseable line", "bytes", len(line))
		return nil
	}
	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		s.logger.Debug("dropping non-object line")
		return nil
	}
	id := root.Get("id")
	if !id.Exists() {
		s.logger.Debug("dropping notification", "method", root.Get("method").String())
		return nil
	}

	req := &MCPRequest{
		JSONRPC: root.Get("jsonrpc").String(),
		ID:      json.RawMessage(id.Raw),
	}
	if m := root.Get("method"); m.Type == gjson.String {
		req.Method = m.String()
	}
	if p := root.Get("params"); p.Exists() {
		req.Params = json.RawMessage(p.Raw)
	}
	return s.handleRequest(ctx, req)
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return s.result(req.ID, map[string]interface{}{})
	default:
		return s.errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return s.result(req.ID, map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    s.name,
			"version": s.version,
		},
	})
}

// handleToolsList returns the descriptors of every registered tool
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return s.result(req.ID, map[string]interface{}{
		"tools": s.registry.Descriptors(),
	})
}

func (s *Server) result(id json.RawMessage, result interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id json.RawMessage, code int, message string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
		},
	}
}
