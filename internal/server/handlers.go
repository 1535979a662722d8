package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ironsheep/qr-tools-mcp/internal/admission"
)

// handleToolsCall processes a tools/call request and executes the named tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool failures return code -32000 with the tool's public message only.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	params := gjson.ParseBytes(req.Params)
	if len(req.Params) == 0 || !params.IsObject() {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params")
	}

	name := params.Get("name")
	if name.Type != gjson.String {
		return s.errorResponse(req.ID, codeInvalidParams, "Missing tool name")
	}

	tool, ok := s.registry.Lookup(name.String())
	if !ok {
		return s.errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("Tool '%s' not found", name.String()))
	}

	var args json.RawMessage
	if a := params.Get("arguments"); a.Exists() {
		args = json.RawMessage(a.Raw)
	}

	ctx, finish := s.observer.StartTool(ctx, tool.Name())
	result, err := tool.Invoke(ctx, args)
	finish(err)
	if err != nil {
		s.logToolError(tool.Name(), err)
		return s.errorResponse(req.ID, codeToolFailed, err.Error())
	}

	text, err := marshalResult(result)
	if err != nil {
		s.logger.Error("tool result not serializable", "tool", tool.Name(), "error", err)
		return s.errorResponse(req.ID, codeToolFailed, "Result encoding failed")
	}

	return s.result(req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": text,
			},
		},
	})
}

// logToolError writes the full cause to the log. The caller only ever sees
// err.Error().
func (s *Server) logToolError(tool string, err error) {
	var aerr *admission.Error
	if errors.As(err, &aerr) {
		s.logger.Info("tool call failed", "tool", tool, "kind", aerr.Kind, "detail", aerr.Detail())
		return
	}
	s.logger.Info("tool call failed", "tool", tool, "error", err)
}

// marshalResult converts a tool result to pretty-printed JSON text.
func marshalResult(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
