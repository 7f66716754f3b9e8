package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"intel-mcp/internal/logger"
)

// Dispatcher routes one request envelope to the registry or the invoker and
// always produces a well-formed response, or nil for notifications. It holds
// no per-request state.
type Dispatcher struct {
	registry     *Registry
	invoker      *Invoker
	info         ServerInfo
	instructions string
	log          *slog.Logger
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithServerInfo sets the name and version reported by initialize.
func WithServerInfo(name, version string) DispatcherOption {
	return func(d *Dispatcher) { d.info = ServerInfo{Name: name, Version: version} }
}

// WithInstructions sets the free-form usage hint returned by initialize.
func WithInstructions(s string) DispatcherOption {
	return func(d *Dispatcher) { d.instructions = s }
}

// WithDispatchLogger sets the dispatcher's logger.
func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDispatcher builds a dispatcher over a registry and an invoker.
func NewDispatcher(reg *Registry, inv *Invoker, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		invoker:  inv,
		info:     ServerInfo{Name: "intel-mcp", Version: "dev"},
		log:      logger.ForComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry exposes the tool table.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// HandleRaw decodes body as a request envelope and handles it. A nil
// response means nothing must be written back.
func (d *Dispatcher) HandleRaw(ctx context.Context, body []byte) *Response {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return newError(nil, CodeParseError, "parse error: request must be a JSON object")
	}
	if !json.Valid(body) {
		return newError(nil, CodeParseError, "parse error: invalid JSON")
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		var envelope struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.Unmarshal(body, &envelope)
		if !validID(envelope.ID) {
			envelope.ID = nil
		}
		return newError(envelope.ID, CodeInvalidRequest, "invalid request: "+err.Error())
	}
	return d.Handle(ctx, &req)
}

// Handle routes a decoded request.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch panic recovered", "method", req.Method, "panic", r, "stack", string(debug.Stack()))
			resp = newError(req.ID, CodeInternalError, "internal error")
		}
	}()

	if !validID(req.ID) {
		return newError(nil, CodeInvalidRequest, "invalid request: id must be a string, number or null")
	}

	switch {
	case req.Method == "":
		return newError(req.ID, CodeInvalidRequest, "invalid request: method is required")
	case req.Method == MethodInitialized, req.Method == MethodNotificationInitialized:
		return nil
	case strings.HasPrefix(req.Method, "notifications/") && (len(req.ID) == 0 || isNull(req.ID)):
		return nil
	}

	switch req.Method {
	case MethodInitialize:
		return newResult(req.ID, d.initializeResult())
	case MethodPing:
		return newResult(req.ID, map[string]any{})
	case MethodListTools:
		return newResult(req.ID, ListToolsResult{Tools: d.registry.List()})
	case MethodCallTool:
		return d.handleCallTool(ctx, req)
	default:
		return newError(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (d *Dispatcher) initializeResult() InitializeResult {
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		ServerInfo:   d.info,
		Instructions: d.instructions,
	}
}

func (d *Dispatcher) handleCallTool(ctx context.Context, req *Request) *Response {
	var params struct {
		Name      *string         `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if len(req.Params) == 0 || isNull(req.Params) {
		return newError(req.ID, CodeInvalidParams, "invalid params: name is required")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
	}
	if params.Name == nil || *params.Name == "" {
		return newError(req.ID, CodeInvalidParams, "invalid params: name is required")
	}
	name := *params.Name

	args := map[string]any{}
	if len(params.Arguments) > 0 && !isNull(params.Arguments) {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return newError(req.ID, CodeInvalidParams, "invalid params: arguments must be an object")
		}
	}

	tool, err := d.registry.Lookup(name)
	if errors.Is(err, ErrToolNotFound) {
		return newError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown tool: %s", name))
	}

	validated, err := Validate(tool.Descriptor.InputSchema, args)
	if err != nil {
		return newError(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
	}

	res, err := d.invoker.Invoke(ctx, tool, validated)
	if err != nil {
		var te *ToolError
		if !errors.As(err, &te) {
			te = normalize(name, err)
		}
		return newError(req.ID, te.Code, te.Error())
	}
	return newResult(req.ID, CallToolResult{
		Content:           []ContentItem{TextContent(res.Text)},
		StructuredContent: res.Structured,
	})
}

func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	switch id[0] {
	case '"', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
