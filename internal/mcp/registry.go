package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrToolNotFound is returned by Lookup for unregistered tool names.
var ErrToolNotFound = errors.New("tool not found")

// Descriptor describes a tool to clients.
type Descriptor struct {
	Name         string  `json:"name"`
	Title        string  `json:"title,omitempty"`
	Description  string  `json:"description"`
	InputSchema  *Schema `json:"inputSchema"`
	OutputSchema *Schema `json:"outputSchema,omitempty"`
}

// Args is a validated argument object.
type Args map[string]any

// RunFunc performs the tool's work and returns its structured payload.
type RunFunc func(ctx context.Context, args Args, c Collaborators) (any, error)

// SummarizeFunc renders the human-readable text for a structured payload.
type SummarizeFunc func(data any) string

// CheckFunc performs semantic argument checks beyond schema shape. It runs
// before any collaborator is touched.
type CheckFunc func(args Args) error

// Tool binds a descriptor to its implementation.
type Tool struct {
	Descriptor Descriptor
	Check      CheckFunc
	Run        RunFunc
	Summarize  SummarizeFunc
}

// Define builds a Tool whose arguments decode into A and whose payload is R.
// The summarize step receives the payload before any budget truncation.
func Define[A any, R any](desc Descriptor, run func(ctx context.Context, args A, c Collaborators) (R, error), summarize func(R) string) Tool {
	t := Tool{Descriptor: desc}
	t.Run = func(ctx context.Context, raw Args, c Collaborators) (any, error) {
		var a A
		if err := decodeArgs(raw, &a); err != nil {
			return nil, InvalidArgument("%v", err)
		}
		r, err := run(ctx, a, c)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	if summarize != nil {
		t.Summarize = func(data any) string {
			r, ok := data.(R)
			if !ok {
				return ""
			}
			return summarize(r)
		}
	}
	return t
}

func decodeArgs(raw Args, v any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

// Registry is an ordered, name-keyed tool table. It is filled once at startup
// and only read afterwards.
type Registry struct {
	index map[string]Tool
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique and a Run function is required.
func (r *Registry) Register(t Tool) error {
	name := t.Descriptor.Name
	if name == "" {
		return errors.New("tool name is required")
	}
	if t.Run == nil {
		return fmt.Errorf("tool %s has no run function", name)
	}
	if _, exists := r.index[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	if t.Descriptor.InputSchema == nil {
		t.Descriptor.InputSchema = OpenObject(nil)
	}
	r.index[name] = t
	r.order = append(r.order, name)
	return nil
}

// MustRegister panics when registration fails.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// List returns the descriptors in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.index[name].Descriptor)
	}
	return out
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, error) {
	t, ok := r.index[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Len reports the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }
