// Package provider abstracts the language-model boundary: one Chat call
// taking the full conversation plus tool schemas, returning free text or
// tool-call requests. Provider failures are infrastructural — callers never
// fold them into tool results.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/tickd-io/tickd/pkg/protocol"
)

// Provider is the abstraction over LLM chat-completion APIs.
type Provider interface {
	Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error)
	Name() string
}

// defaultHTTPClient bounds every provider call; the ceiling covers slow
// tool-heavy completions.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}
