package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/tickd-io/tickd/internal/backend"
	"github.com/tickd-io/tickd/internal/tool"
	"github.com/tickd-io/tickd/pkg/protocol"
)

// ErrRoundLimit is the distinguished outcome of a turn that exhausted its
// tool-call round budget without the model producing a final answer.
var ErrRoundLimit = errors.New("agent: tool-call round limit reached")

// ErrBusy is returned when Chat is called while another turn is in flight.
var ErrBusy = errors.New("agent: a turn is already in flight")

// Chat runs one turn: append the user message, then alternate model calls
// and tool dispatch until the model answers in plain text or the round
// budget runs out. Tool failures are fed back to the model inside tool-role
// messages; only infrastructural failures (provider errors, backend
// transport/auth/server faults) abort the turn with an error.
func (a *Agent) Chat(ctx context.Context, userText string) (string, error) {
	if !a.inFlight.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer a.inFlight.Store(false)

	a.messages = append(a.messages, protocol.ChatMessage{Role: protocol.RoleUser, Content: userText})

	maxRounds := a.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	toolDefs := a.Tools.Definitions()

	for round := 1; round <= maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("agent: turn cancelled: %w", err)
		}

		a.Logger.Debug("model call",
			"round", round,
			"messages", len(a.messages),
		)

		resp, err := a.Provider.Chat(ctx, protocol.ChatRequest{
			Messages: a.messages,
			Tools:    toolDefs,
		})
		if err != nil {
			return "", fmt.Errorf("agent: provider %s: %w", a.Provider.Name(), err)
		}

		a.messages = append(a.messages, protocol.ChatMessage{
			Role:      protocol.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if !resp.HasToolCalls() {
			a.Logger.Debug("final response", "round", round, "content_len", len(resp.Content))
			a.trimHistory()
			return resp.Content, nil
		}

		// One tool-role answer per request, in emission order: later
		// calls in the batch may depend on earlier results, and the
		// transcript must pair every call id before the next model call.
		for _, tc := range resp.ToolCalls {
			out, err := a.dispatch(ctx, tc)
			a.messages = append(a.messages, protocol.ChatMessage{
				Role:       protocol.RoleTool,
				Content:    out,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
			if err != nil {
				return "", err
			}
		}
	}

	a.Logger.Warn("round limit reached", "max_rounds", maxRounds)
	a.trimHistory()
	return "", ErrRoundLimit
}

// dispatch executes one tool call and returns the serialized result. An
// unknown tool name is a protocol violation the model can correct, so it
// becomes a failure result; any other error is infrastructural and aborts
// the turn. A result is returned in every case so the call id is always
// answered and the transcript stays consistent for later turns.
func (a *Agent) dispatch(ctx context.Context, tc protocol.ToolCall) (string, error) {
	a.Logger.Info("tool call", "tool", tc.Name, "call_id", tc.ID)

	out, err := a.Tools.Execute(ctx, tc.Name, tc.Arguments)
	switch {
	case errors.Is(err, tool.ErrUnknown):
		a.Logger.Warn("unknown tool requested", "tool", tc.Name)
		return backend.Failure(0, err.Error()).Encode(), nil
	case err != nil:
		a.Logger.Error("tool dispatch failed", "tool", tc.Name, "error", err)
		return backend.Failure(0, "internal error").Encode(), fmt.Errorf("agent: tool %s: %w", tc.Name, err)
	default:
		a.Logger.Debug("tool result", "tool", tc.Name, "result_len", len(out))
		return out, nil
	}
}
