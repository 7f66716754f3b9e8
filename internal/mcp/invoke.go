package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"intel-mcp/internal/logger"
)

// DefaultPayloadBudget is the byte ceiling for structured content.
const DefaultPayloadBudget = 100 * 1024

// Invoker runs validated tool calls and normalizes their outcome.
type Invoker struct {
	collab  Collaborators
	budget  int
	timeout time.Duration
	log     *slog.Logger
}

// InvokerOption customises an Invoker.
type InvokerOption func(*Invoker)

// WithPayloadBudget sets the structured content byte budget.
func WithPayloadBudget(n int) InvokerOption {
	return func(i *Invoker) {
		if n > 0 {
			i.budget = n
		}
	}
}

// WithCallTimeout bounds each call; zero disables the bound.
func WithCallTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) { i.timeout = d }
}

// WithLogger sets the invoker's logger.
func WithLogger(l *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		if l != nil {
			i.log = l
		}
	}
}

// NewInvoker binds a collaborator bundle to an invoker.
func NewInvoker(c Collaborators, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		collab:  c,
		budget:  DefaultPayloadBudget,
		timeout: 30 * time.Second,
		log:     logger.ForComponent("invoker"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Budget reports the structured content byte budget.
func (i *Invoker) Budget() int { return i.budget }

// Invoke runs t with already validated args. Every failure, including a
// panic inside the tool, comes back as a *ToolError.
func (i *Invoker) Invoke(ctx context.Context, t Tool, args Args) (res *ToolResult, err error) {
	name := t.Descriptor.Name
	defer func() {
		if r := recover(); r != nil {
			i.log.Error("tool panic recovered", "tool", name, "panic", r, "stack", string(debug.Stack()))
			res, err = nil, &ToolError{Kind: KindInternal, Code: CodeToolFailure, Message: fmt.Sprintf("tool %s panicked: %v", name, r)}
		}
	}()

	if t.Check != nil {
		if err := t.Check(args); err != nil {
			return nil, normalize(name, err)
		}
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := t.Run(ctx, args, i.collab)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		te := normalize(name, err)
		i.log.Warn("tool call failed", "tool", name, "kind", te.Kind, "error", te, "elapsed", time.Since(start))
		return nil, te
	}
	i.log.Debug("tool call finished", "tool", name, "elapsed", time.Since(start))

	text := ""
	if t.Summarize != nil && data != nil {
		text = t.Summarize(data)
	}

	if data != nil && t.Descriptor.OutputSchema != nil {
		if err := checkOutput(t.Descriptor.OutputSchema, data); err != nil {
			i.log.Warn("structured content dropped: does not match output schema", "tool", name, "error", err)
			data = nil
		}
	}

	var structured any
	if data != nil {
		fitted, truncated, err := FitBudget(data, i.budget)
		if err != nil {
			return nil, normalize(name, err)
		}
		if truncated {
			i.log.Info("structured content truncated", "tool", name, "budget", i.budget)
			if t.Descriptor.OutputSchema != nil {
				if err := checkOutput(t.Descriptor.OutputSchema, fitted); err != nil {
					i.log.Warn("structured content dropped: truncated payload does not match output schema", "tool", name, "error", err)
					fitted = nil
				}
			}
		}
		structured = fitted
	}

	if text == "" {
		text = fallbackText(name, structured)
	}
	return &ToolResult{Text: text, Structured: structured}, nil
}

// checkOutput validates the JSON form of data against schema.
func checkOutput(schema *Schema, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode structured content: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("decode structured content: %w", err)
	}
	return ValidateValue(schema, generic)
}

// fallbackText is used when a tool has no summary: the compact JSON payload
// when it is short, otherwise a one-line notice.
func fallbackText(name string, structured any) string {
	if structured == nil {
		return fmt.Sprintf("%s completed.", name)
	}
	data, err := json.Marshal(structured)
	if err != nil || len(data) > 2048 {
		return fmt.Sprintf("%s completed; see structured content.", name)
	}
	return string(data)
}
