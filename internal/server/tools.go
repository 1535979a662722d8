package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Tool is one remotely invokable capability.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	// Invoke runs the tool. args is the raw "arguments" member and may be
	// nil when the caller sent none. Returned errors are shown to the caller
	// verbatim, so they must not carry internal detail.
	Invoke(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// Descriptor is the tools/list entry for a Tool.
type Descriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Registry maps tool names to tools. Register is meant for startup only;
// once serving starts the registry is read without locking.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns a registry holding tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Empty and duplicate names are rejected.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errors.New("nil tool")
	}
	name := t.Name()
	if name == "" {
		return errors.New("tool name is empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Descriptors lists every tool, sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Descriptor{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
