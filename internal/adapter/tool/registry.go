// Package tool implements the tools offered to the agent loop and over MCP.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"ragchat/internal/domain"
	"ragchat/internal/port"
)

type Registry struct {
	tools  []port.Tool
	byName map[string]port.Tool
}

func NewRegistry(tools ...port.Tool) *Registry {
	r := &Registry{byName: make(map[string]port.Tool, len(tools))}
	for _, t := range tools {
		r.tools = append(r.tools, t)
		r.byName[t.Name()] = t
	}
	return r
}

func (r *Registry) Tools() []port.Tool {
	return append([]port.Tool(nil), r.tools...)
}

func (r *Registry) Get(name string) (port.Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Specs describes every tool to a model.
func (r *Registry) Specs() []port.ToolSpec {
	specs := make([]port.ToolSpec, len(r.tools))
	for i, t := range r.tools {
		specs[i] = port.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		}
	}
	return specs
}

func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: tool %q", domain.ErrNotFound, name)
	}
	return t.Invoke(ctx, args)
}

func decodeArgs(name string, args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %s arguments: %v", domain.ErrInvalidArgument, name, err)
	}
	return nil
}

func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
