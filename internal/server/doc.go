// Package server implements the MCP (Model Context Protocol) server for the
// QR tools.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout (one per line)
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// A line that is not valid JSON, or that has no "id" member, gets no
// response. "id": null is a present id and is echoed back as null. Lines
// longer than Options.MaxLineBytes are discarded unread.
//
// # Available Tools
//
//   - generate_qr_code: Render text as a QR code, upload the PNG and return
//     its URL
//   - decode_qr_code: Decode the first QR code found in an inline base64
//     image or an image on an allow-listed HTTPS host
//
// Tools implement the Tool interface and are held by a Registry that is
// filled once at startup.
//
// # Error Handling
//
// Protocol problems use standard JSON-RPC codes:
//   - -32601: unknown method, or unknown tool name
//   - -32602: params missing or not an object, or no tool name
//
// Tool failures use -32000 with a fixed, caller-safe message such as
// "Domain not allowed". The underlying cause is only written to the log.
//
// # Usage
//
//	reg, _ := server.NewRegistry(
//	    server.GenerateTool{Pipeline: p},
//	    server.DecodeTool{Pipeline: p},
//	)
//	srv := server.New(reg, server.Options{Version: version, Logger: logger})
//	if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
package server
