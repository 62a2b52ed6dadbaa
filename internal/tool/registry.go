package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tickd-io/tickd/pkg/protocol"
)

// ErrUnknown is returned by Execute for a tool name that was never
// registered. Callers fold it into a tool failure so the model can
// self-correct.
var ErrUnknown = errors.New("unknown tool")

// Registry is a fixed set of tools, immutable after construction.
type Registry struct {
	tools map[string]Tool
	names []string // sorted, for deterministic definitions
}

// NewRegistry builds a registry from the given tools. Duplicate names are a
// programming error and rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Name()
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("tool registry: duplicate tool %q", name)
		}
		r.tools[name] = t
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Verify checks that every expected tool name is registered. Run at startup
// so a missing handler cannot silently no-op at dispatch time.
func (r *Registry) Verify(expected ...string) error {
	var missing []string
	for _, name := range expected {
		if _, ok := r.tools[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("tool registry: missing tools: %v (registered: %v)", missing, r.names)
	}
	return nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }

// Definitions returns all tools in function-calling format, sorted by name.
func (r *Registry) Definitions() []protocol.ToolDefinition {
	defs := make([]protocol.ToolDefinition, 0, len(r.names))
	for _, name := range r.names {
		t := r.tools[name]
		defs = append(defs, protocol.NewToolDefinition(t.Name(), t.Description(), t.Parameters()))
	}
	return defs
}

// Execute dispatches the named tool. Returns ErrUnknown for an unregistered
// name.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %q (available: %v)", ErrUnknown, name, r.names)
	}
	return t.Execute(ctx, args)
}
