// Package tool declares the operations the language model may invoke and
// dispatches them against the ticket backend. The tool set is fixed at
// startup; an unknown name is a protocol violation the model can recover
// from, never a crash.
package tool

import "context"

// Tool is one callable operation exposed to the language model.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema
	// Execute runs the tool. The returned string is the serialized
	// ToolCallResult fed back to the model; argument problems and
	// backend-reported failures are encoded in it. A non-nil error is
	// infrastructural and aborts the turn.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// getString extracts a string argument, returning "" when absent or not a
// string.
func getString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// optString extracts an optional string argument as a pointer, nil when the
// model did not supply it.
func optString(args map[string]any, key string) *string {
	raw, ok := args[key]
	if !ok {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil
	}
	return &s
}
