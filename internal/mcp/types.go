// Package mcp implements the tool-invocation core of the gateway: the tool
// registry, argument validation, invocation and JSON-RPC dispatch.
package mcp

import "encoding/json"

const (
	// JSONRPCVersion is the envelope version stamped on every response.
	JSONRPCVersion = "2.0"
	// ProtocolVersion is the MCP revision advertised by initialize.
	ProtocolVersion = "2025-06-18"
)

// Reserved JSON-RPC error codes. The -32000..-32099 band is used for tool
// execution failures.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeToolFailure       = -32000
	CodeUpstreamError     = -32001
	CodeMissingCredential = -32002
	CodeNotFound          = -32004
)

// Method names routed by the dispatcher.
const (
	MethodInitialize              = "initialize"
	MethodInitialized             = "initialized"
	MethodNotificationInitialized = "notifications/initialized"
	MethodPing                    = "ping"
	MethodListTools               = "tools/list"
	MethodCallTool                = "tools/call"
)

// Request is an inbound JSON-RPC envelope. ID is kept raw so it can be echoed
// byte for byte; a nil ID means the field was absent.
type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound JSON-RPC envelope. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CallToolParams is the params object of tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentItem is one block of a tool result's content list.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the result object of a successful tools/call.
type CallToolResult struct {
	Content           []ContentItem `json:"content"`
	StructuredContent any           `json:"structuredContent,omitempty"`
}

// ListToolsResult is the result object of tools/list.
type ListToolsResult struct {
	Tools []Descriptor `json:"tools"`
}

// ServerInfo names this server in the initialize result.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the static metadata returned by initialize.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty"`
}

// ToolResult is what the invoker produces for one successful call.
type ToolResult struct {
	Text       string
	Structured any
}

// TextContent creates a text content item.
func TextContent(text string) ContentItem {
	return ContentItem{Type: "text", Text: text}
}

var nullID = json.RawMessage("null")

func newResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: echoID(id), Result: result}
}

func newError(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      echoID(id),
		Error:   &Error{Code: code, Message: message},
	}
}

func echoID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}
