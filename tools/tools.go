package tools

import (
	"context"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/rulesql/errors"
)

// Tool defines the interface for any capability the agent can invoke.
type Tool interface {
	Name() string
	Description() string
	// InputSchema is the JSON schema of the arguments object.
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry maps capability names to tools. It is filled once by NewRegistry
// and read-only afterwards.
type Registry struct {
	tools map[string]Tool
	order []Tool
}

// NewRegistry builds a registry from ts. Duplicate names are an error.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if _, dup := r.tools[t.Name()]; dup {
			return nil, errors.New("tool '%s' registered twice", t.Name())
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t)
	}
	return r, nil
}

func (r *Registry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	return append([]Tool(nil), r.order...)
}

func (r *Registry) Len() int { return len(r.order) }

// Call executes the named tool.
func (r *Registry) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	t, ok := r.GetTool(name)
	if !ok {
		return "", errors.Mark(errors.New("tool '%s' is not available", name), errors.ErrUnknownTool)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return t.Execute(ctx, args)
}

// Filter keeps the tools whose names match at least one of the glob
// patterns, preserving order.
func Filter(ts []Tool, patterns []string) ([]Tool, error) {
	var kept []Tool
	for _, t := range ts {
		match, err := matchesAny(t.Name(), patterns)
		if err != nil {
			return nil, err
		}
		if match {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

func matchesAny(name string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return false, errors.Mark(errors.New("invalid tool pattern '%s'", pattern), errors.ErrConfig)
		}
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true, nil
		}
	}
	return false, nil
}
