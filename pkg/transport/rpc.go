package transport

import (
	"bytes"
	"encoding/json"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
)

// protocolVersion is the MCP revision this server speaks. The streamable
// HTTP transport (session header, SSE channels) entered the protocol in
// the 2025-03-26 revision.
const protocolVersion = "2025-03-26"

// JSON-RPC 2.0 error codes used at the transport boundary. Operation
// failures are not transport errors: they travel inside a successful
// response as the envelope's error field.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request carries no id and therefore
// must not produce a response entry.
func (r rpcRequest) isNotification() bool {
	return r.ID == nil
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type toolsListResult struct {
	Tools []toolDescriptor `json:"tools"`
}

type toolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Meta      *callMeta       `json:"_meta,omitempty"`
}

type callMeta struct {
	ProgressToken any `json:"progressToken,omitempty"`
}

type toolsCallResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func okResponse(id, result any) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id any, code int, message string) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

// progressNotification wraps one router progress event in the MCP
// notification frame pushed to streaming channels.
func progressNotification(ev protocol.ProgressEvent) rpcNotification {
	return rpcNotification{
		JSONRPC: "2.0",
		Method:  "notifications/progress",
		Params:  ev,
	}
}

// isBatch reports whether the payload is a JSON array of calls.
func isBatch(payload []byte) bool {
	trimmed := bytes.TrimLeft(payload, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// renderEnvelope marshals a router result to JSON text and reports
// whether it represents a failed call. The router hands back either a
// protocol.Envelope or an augmented map for handlers that produced
// their own envelope shape.
func renderEnvelope(result any) (string, bool) {
	failed := false
	switch v := result.(type) {
	case protocol.Envelope:
		failed = !v.Success
	case map[string]any:
		if success, ok := v["success"].(bool); ok {
			failed = !success
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		fallback := protocol.Fail(protocol.NewError(protocol.CodeInternal, "response serialization failed"), 0, "")
		data, _ = json.Marshal(fallback)
		return string(data), true
	}
	return string(data), failed
}
