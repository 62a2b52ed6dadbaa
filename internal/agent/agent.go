// Package agent runs the orchestration loop: user turns become bounded
// sequences of tool invocations against the ticket backend, with the
// conversation transcript as the only shared state.
package agent

import (
	"log/slog"
	"sync/atomic"

	"github.com/tickd-io/tickd/internal/provider"
	"github.com/tickd-io/tickd/internal/tool"
	"github.com/tickd-io/tickd/pkg/protocol"
)

// SystemPrompt is the behavioral directive seeding every conversation.
const SystemPrompt = `You are a helpful support ticket assistant. You help users manage their support tickets by creating, viewing, updating, and deleting them.

When users ask about tickets, use the available tools to interact with the ticketing system. Always provide clear, helpful responses based on the results.

If an operation fails (e.g., ticket not found, invalid status), explain the error clearly to the user and suggest what they can do instead.

Valid ticket statuses are: OPEN, RESOLVED, CLOSED. If a user tries to use an invalid status, inform them of the valid options.

When resolving a ticket (setting status to RESOLVED), a resolution note explaining how the issue was fixed is required.`

const (
	// defaultMaxRounds caps model-call/tool-dispatch cycles per turn. This
	// is runaway protection, not a tuning value.
	defaultMaxRounds = 10
	// defaultMaxHistory bounds the transcript across turns. Trimming only
	// happens between turns, keeping the system message.
	defaultMaxHistory = 50
)

// Agent owns one conversation and drives the tool-calling loop against a
// language model. It is not reentrant: one Chat call at a time.
type Agent struct {
	Provider   provider.Provider
	Tools      *tool.Registry
	Logger     *slog.Logger
	MaxRounds  int
	MaxHistory int

	messages []protocol.ChatMessage
	inFlight atomic.Bool
}

// New creates an agent with a freshly seeded conversation.
func New(prov provider.Provider, tools *tool.Registry) *Agent {
	a := &Agent{
		Provider:   prov,
		Tools:      tools,
		Logger:     slog.Default(),
		MaxRounds:  defaultMaxRounds,
		MaxHistory: defaultMaxHistory,
	}
	a.seed()
	return a
}

func (a *Agent) seed() {
	a.messages = []protocol.ChatMessage{{Role: protocol.RoleSystem, Content: SystemPrompt}}
}

// Reset discards the conversation and reseeds the system directive.
func (a *Agent) Reset() {
	a.seed()
	a.Logger.Info("conversation reset")
}

// History returns a copy of the transcript, for display only.
func (a *Agent) History() []protocol.ChatMessage {
	out := make([]protocol.ChatMessage, len(a.messages))
	copy(out, a.messages)
	return out
}

// trimHistory drops the oldest non-system messages once the transcript
// exceeds MaxHistory. Called only between turns so in-turn tool-call pairing
// is never broken.
func (a *Agent) trimHistory() {
	max := a.MaxHistory
	if max <= 0 || len(a.messages) <= max {
		return
	}
	// Never cut between an assistant tool-call message and its tool-role
	// answers: both provider wire formats reject an orphaned tool result.
	cut := len(a.messages) - (max - 1)
	for cut < len(a.messages) && a.messages[cut].Role == protocol.RoleTool {
		cut++
	}

	trimmed := make([]protocol.ChatMessage, 0, max)
	trimmed = append(trimmed, a.messages[0]) // system directive
	trimmed = append(trimmed, a.messages[cut:]...)
	a.messages = trimmed
	a.Logger.Debug("trimmed history", "messages", len(a.messages))
}
