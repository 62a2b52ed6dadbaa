package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/tickd-io/tickd/internal/backend"
	"github.com/tickd-io/tickd/internal/tool"
	"github.com/tickd-io/tickd/pkg/protocol"
)

// scriptProvider returns a fixed sequence of responses and records every
// request it receives.
type scriptProvider struct {
	responses []*protocol.ChatResponse
	err       error
	calls     []protocol.ChatRequest
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) Chat(_ context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	p.calls = append(p.calls, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.calls) > len(p.responses) {
		return nil, fmt.Errorf("script: no response for call %d", len(p.calls))
	}
	return p.responses[len(p.calls)-1], nil
}

// okBackend answers every operation with a canned success.
type okBackend struct {
	mu  sync.Mutex
	ops []string
}

func (b *okBackend) record(op string) {
	b.mu.Lock()
	b.ops = append(b.ops, op)
	b.mu.Unlock()
}

func (b *okBackend) CreateTicket(_ context.Context, title, description string) (backend.Result, error) {
	b.record("create")
	return backend.Success(map[string]any{"id": "t-1", "title": title, "description": description, "status": "OPEN"}), nil
}
func (b *okBackend) ListTickets(context.Context, string) (backend.Result, error) {
	b.record("list")
	return backend.Success([]any{}), nil
}
func (b *okBackend) GetTicket(_ context.Context, id string) (backend.Result, error) {
	b.record("get " + id)
	return backend.Success(map[string]any{"id": id}), nil
}
func (b *okBackend) UpdateTicket(_ context.Context, id string, _ protocol.TicketUpdate) (backend.Result, error) {
	b.record("update " + id)
	return backend.Success(map[string]any{"id": id}), nil
}
func (b *okBackend) DeleteTicket(_ context.Context, id string) (backend.Result, error) {
	b.record("delete " + id)
	return backend.Success(nil), nil
}

func newTestAgent(t *testing.T, prov *scriptProvider, b tool.Backend) *Agent {
	t.Helper()
	if b == nil {
		b = &okBackend{}
	}
	reg, err := tool.NewRegistry(tool.TicketTools(b)...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return New(prov, reg)
}

func TestChatDirectResponse(t *testing.T) {
	prov := &scriptProvider{responses: []*protocol.ChatResponse{{Content: "Hello!"}}}
	a := newTestAgent(t, prov, nil)

	got, err := a.Chat(context.Background(), "hi")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != "Hello!" {
		t.Errorf("got %q", got)
	}

	// The transcript sent to the model starts with the directive and the
	// user message, plus the registered tool schemas.
	if len(prov.calls) != 1 {
		t.Fatalf("provider calls = %d", len(prov.calls))
	}
	msgs := prov.calls[0].Messages
	if len(msgs) != 2 || msgs[0].Role != protocol.RoleSystem || msgs[1].Content != "hi" {
		t.Errorf("messages = %+v", msgs)
	}
	if len(prov.calls[0].Tools) != 5 {
		t.Errorf("tools sent = %d, want 5", len(prov.calls[0].Tools))
	}
}

func TestChatHappyPathCreate(t *testing.T) {
	prov := &scriptProvider{responses: []*protocol.ChatResponse{
		{ToolCalls: []protocol.ToolCall{{
			ID:   "call_1",
			Name: "create_ticket",
			Arguments: map[string]any{
				"title":       "Broken keyboard",
				"description": "Several keys do not register",
			},
		}}},
		{Content: "Created ticket t-1 for your broken keyboard."},
	}}
	b := &okBackend{}
	a := newTestAgent(t, prov, b)

	got, err := a.Chat(context.Background(), "create a ticket about a broken keyboard")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(got, "t-1") {
		t.Errorf("reply = %q", got)
	}
	if len(b.ops) != 1 || b.ops[0] != "create" {
		t.Errorf("backend ops = %v", b.ops)
	}

	// Second model call must carry the tool result, paired by call id.
	second := prov.calls[1].Messages
	last := second[len(second)-1]
	if last.Role != protocol.RoleTool || last.ToolCallID != "call_1" {
		t.Fatalf("last message = %+v", last)
	}
	var res backend.Result
	if err := json.Unmarshal([]byte(last.Content), &res); err != nil || !res.Ok {
		t.Errorf("tool result = %q", last.Content)
	}
}

func TestChatAnswersEveryCallInOrder(t *testing.T) {
	prov := &scriptProvider{responses: []*protocol.ChatResponse{
		{ToolCalls: []protocol.ToolCall{
			{ID: "c1", Name: "get_ticket", Arguments: map[string]any{"id": "t-1"}},
			{ID: "c2", Name: "get_ticket", Arguments: map[string]any{"id": "t-2"}},
			{ID: "c3", Name: "list_tickets", Arguments: map[string]any{}},
		}},
		{Content: "done"},
	}}
	b := &okBackend{}
	a := newTestAgent(t, prov, b)

	if _, err := a.Chat(context.Background(), "inspect"); err != nil {
		t.Fatalf("chat: %v", err)
	}

	// Execution order follows emission order.
	want := []string{"get t-1", "get t-2", "list"}
	if len(b.ops) != 3 || b.ops[0] != want[0] || b.ops[1] != want[1] || b.ops[2] != want[2] {
		t.Errorf("ops = %v, want %v", b.ops, want)
	}

	// Exactly one tool-role answer per request, same order, matching ids.
	msgs := prov.calls[1].Messages
	var answers []protocol.ChatMessage
	for _, m := range msgs {
		if m.Role == protocol.RoleTool {
			answers = append(answers, m)
		}
	}
	if len(answers) != 3 {
		t.Fatalf("tool answers = %d, want 3", len(answers))
	}
	for i, id := range []string{"c1", "c2", "c3"} {
		if answers[i].ToolCallID != id {
			t.Errorf("answer %d id = %q, want %q", i, answers[i].ToolCallID, id)
		}
	}
}

func TestChatUnknownToolIsRecoverable(t *testing.T) {
	prov := &scriptProvider{responses: []*protocol.ChatResponse{
		{ToolCalls: []protocol.ToolCall{{ID: "c1", Name: "restart_server", Arguments: map[string]any{}}}},
		{Content: "Sorry, I can only manage tickets."},
	}}
	a := newTestAgent(t, prov, nil)

	got, err := a.Chat(context.Background(), "restart the server")
	if err != nil {
		t.Fatalf("unknown tool must not abort the turn: %v", err)
	}
	if got != "Sorry, I can only manage tickets." {
		t.Errorf("got %q", got)
	}

	msgs := prov.calls[1].Messages
	last := msgs[len(msgs)-1]
	var res backend.Result
	if err := json.Unmarshal([]byte(last.Content), &res); err != nil {
		t.Fatalf("tool message = %q", last.Content)
	}
	if res.Ok || !strings.Contains(res.Error, "restart_server") {
		t.Errorf("result = %+v", res)
	}
}

func TestChatRoundLimit(t *testing.T) {
	// A pathological model that always wants one more tool call.
	greedy := &protocol.ChatResponse{ToolCalls: []protocol.ToolCall{
		{ID: "c", Name: "list_tickets", Arguments: map[string]any{}},
	}}
	prov := &scriptProvider{}
	for i := 0; i < 20; i++ {
		prov.responses = append(prov.responses, greedy)
	}
	a := newTestAgent(t, prov, nil)
	a.MaxRounds = 3

	_, err := a.Chat(context.Background(), "loop forever")
	if !errors.Is(err, ErrRoundLimit) {
		t.Fatalf("err = %v, want ErrRoundLimit", err)
	}
	if len(prov.calls) != 3 {
		t.Errorf("provider calls = %d, want 3", len(prov.calls))
	}
}

func TestChatProviderErrorAborts(t *testing.T) {
	prov := &scriptProvider{err: errors.New("api error (status 500)")}
	a := newTestAgent(t, prov, nil)

	_, err := a.Chat(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "provider") {
		t.Errorf("err = %v", err)
	}
}

// failingBackend simulates the backend being unreachable.
type failingBackend struct{ okBackend }

func (b *failingBackend) GetTicket(context.Context, string) (backend.Result, error) {
	return backend.Result{}, errors.New("backend: connection refused")
}

func TestChatInfrastructuralToolErrorAborts(t *testing.T) {
	prov := &scriptProvider{responses: []*protocol.ChatResponse{
		{ToolCalls: []protocol.ToolCall{{ID: "c1", Name: "get_ticket", Arguments: map[string]any{"id": "t-1"}}}},
	}}
	a := newTestAgent(t, prov, &failingBackend{})

	_, err := a.Chat(context.Background(), "show t-1")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v", err)
	}
	if len(prov.calls) != 1 {
		t.Errorf("turn should abort before another model call, got %d", len(prov.calls))
	}
}

func TestChatNotInFlightReentrant(t *testing.T) {
	prov := &scriptProvider{responses: []*protocol.ChatResponse{{Content: "ok"}, {Content: "ok"}}}
	a := newTestAgent(t, prov, nil)

	a.inFlight.Store(true)
	if _, err := a.Chat(context.Background(), "hi"); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
	a.inFlight.Store(false)

	if _, err := a.Chat(context.Background(), "hi"); err != nil {
		t.Errorf("after release: %v", err)
	}
}

func TestResetReseedsConversation(t *testing.T) {
	prov := &scriptProvider{responses: []*protocol.ChatResponse{{Content: "a"}, {Content: "b"}}}
	a := newTestAgent(t, prov, nil)

	a.Chat(context.Background(), "first")
	if len(a.History()) != 3 { // system, user, assistant
		t.Fatalf("history = %d", len(a.History()))
	}

	a.Reset()
	h := a.History()
	if len(h) != 1 || h[0].Role != protocol.RoleSystem {
		t.Errorf("after reset: %+v", h)
	}
}

func TestTrimNeverOrphansToolResults(t *testing.T) {
	a := newTestAgent(t, &scriptProvider{}, nil)
	a.MaxHistory = 4

	// A transcript where the naive cut would land between an assistant
	// tool-call message and its answers.
	a.messages = []protocol.ChatMessage{
		{Role: protocol.RoleSystem, Content: SystemPrompt},
		{Role: protocol.RoleUser, Content: "old"},
		{Role: protocol.RoleAssistant, ToolCalls: []protocol.ToolCall{{ID: "c1", Name: "list_tickets"}}},
		{Role: protocol.RoleTool, ToolCallID: "c1", Content: `{"success":true}`},
		{Role: protocol.RoleTool, ToolCallID: "c2", Content: `{"success":true}`},
		{Role: protocol.RoleAssistant, Content: "done"},
	}
	a.trimHistory()

	h := a.History()
	if h[0].Role != protocol.RoleSystem {
		t.Fatalf("head = %+v", h[0])
	}
	for i, m := range h {
		if m.Role != protocol.RoleTool {
			continue
		}
		if i == 1 {
			t.Fatalf("tool result at window head: %+v", m)
		}
		prev := h[i-1]
		if prev.Role != protocol.RoleTool && len(prev.ToolCalls) == 0 {
			t.Errorf("tool result %q not preceded by its request", m.ToolCallID)
		}
	}
	if last := h[len(h)-1]; last.Content != "done" {
		t.Errorf("most recent message lost: %+v", last)
	}
}

func TestHistoryTrimsBetweenTurns(t *testing.T) {
	prov := &scriptProvider{}
	for i := 0; i < 30; i++ {
		prov.responses = append(prov.responses, &protocol.ChatResponse{Content: fmt.Sprintf("r%d", i)})
	}
	a := newTestAgent(t, prov, nil)
	a.MaxHistory = 9

	for i := 0; i < 30; i++ {
		if _, err := a.Chat(context.Background(), fmt.Sprintf("u%d", i)); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	h := a.History()
	if len(h) > 9 {
		t.Errorf("history = %d, want <= 9", len(h))
	}
	if h[0].Role != protocol.RoleSystem {
		t.Errorf("system directive lost: %+v", h[0])
	}
	if last := h[len(h)-1]; last.Content != "r29" {
		t.Errorf("most recent messages must survive, last = %+v", last)
	}
}
