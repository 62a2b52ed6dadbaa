package tool

import (
	"context"
	"fmt"

	"github.com/tickd-io/tickd/internal/backend"
	"github.com/tickd-io/tickd/pkg/protocol"
)

// Tool names, also the closed dispatch set verified at startup.
const (
	NameCreateTicket = "create_ticket"
	NameListTickets  = "list_tickets"
	NameGetTicket    = "get_ticket"
	NameUpdateTicket = "update_ticket"
	NameDeleteTicket = "delete_ticket"
)

// TicketToolNames lists every ticket tool for Registry.Verify.
func TicketToolNames() []string {
	return []string{NameCreateTicket, NameListTickets, NameGetTicket, NameUpdateTicket, NameDeleteTicket}
}

// Backend is the ticket API surface the tools need. *backend.Client
// implements it; tests substitute stubs.
type Backend interface {
	CreateTicket(ctx context.Context, title, description string) (backend.Result, error)
	ListTickets(ctx context.Context, status string) (backend.Result, error)
	GetTicket(ctx context.Context, id string) (backend.Result, error)
	UpdateTicket(ctx context.Context, id string, update protocol.TicketUpdate) (backend.Result, error)
	DeleteTicket(ctx context.Context, id string) (backend.Result, error)
}

// TicketTools builds the five CRUD tools over the given backend.
func TicketTools(b Backend) []Tool {
	return []Tool{
		&CreateTicketTool{Backend: b},
		&ListTicketsTool{Backend: b},
		&GetTicketTool{Backend: b},
		&UpdateTicketTool{Backend: b},
		&DeleteTicketTool{Backend: b},
	}
}

// statusEnum is the schema fragment for status arguments.
func statusEnum(desc string) map[string]any {
	return map[string]any{
		"type":        "string",
		"enum":        []string{"OPEN", "RESOLVED", "CLOSED"},
		"description": desc,
	}
}

// invalidArgs encodes an argument problem as a tool failure, never an error.
func invalidArgs(format string, a ...any) (string, error) {
	return backend.Failure(0, fmt.Sprintf(format, a...)).Encode(), nil
}

// --- create_ticket ---

type CreateTicketTool struct {
	Backend Backend
}

func (t *CreateTicketTool) Name() string { return NameCreateTicket }
func (t *CreateTicketTool) Description() string {
	return "Create a new support ticket in the system"
}
func (t *CreateTicketTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": fmt.Sprintf("Brief summary of the issue (max %d characters)", protocol.MaxTitleLen),
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Detailed explanation of the problem",
			},
		},
		"required": []string{"title", "description"},
	}
}

func (t *CreateTicketTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	title := getString(args, "title")
	description := getString(args, "description")
	if title == "" {
		return invalidArgs("create_ticket: title is required")
	}
	if description == "" {
		return invalidArgs("create_ticket: description is required")
	}

	res, err := t.Backend.CreateTicket(ctx, title, description)
	if err != nil {
		return "", err
	}
	return res.Encode(), nil
}

// --- list_tickets ---

type ListTicketsTool struct {
	Backend Backend
}

func (t *ListTicketsTool) Name() string { return NameListTickets }
func (t *ListTicketsTool) Description() string {
	return "List all tickets, optionally filtered by status"
}
func (t *ListTicketsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": statusEnum("Filter tickets by status (optional)"),
		},
		"required": []string{},
	}
}

func (t *ListTicketsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	status := getString(args, "status")
	if status != "" && !protocol.TicketStatus(status).Valid() {
		return invalidArgs("list_tickets: invalid status %q: valid statuses are OPEN, RESOLVED, CLOSED", status)
	}

	res, err := t.Backend.ListTickets(ctx, status)
	if err != nil {
		return "", err
	}
	return res.Encode(), nil
}

// --- get_ticket ---

type GetTicketTool struct {
	Backend Backend
}

func (t *GetTicketTool) Name() string { return NameGetTicket }
func (t *GetTicketTool) Description() string {
	return "Get details of a specific ticket by its ID"
}
func (t *GetTicketTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": "The unique identifier of the ticket",
			},
		},
		"required": []string{"id"},
	}
}

func (t *GetTicketTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	id := getString(args, "id")
	if id == "" {
		return invalidArgs("get_ticket: id is required")
	}

	res, err := t.Backend.GetTicket(ctx, id)
	if err != nil {
		return "", err
	}
	return res.Encode(), nil
}

// --- update_ticket ---

type UpdateTicketTool struct {
	Backend Backend
}

func (t *UpdateTicketTool) Name() string { return NameUpdateTicket }
func (t *UpdateTicketTool) Description() string {
	return "Update an existing ticket's title, description, status, or resolution. " +
		"A resolution note is required when setting status to RESOLVED."
}
func (t *UpdateTicketTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": "The unique identifier of the ticket to update",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "New title for the ticket (optional)",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "New description for the ticket (optional)",
			},
			"status": statusEnum("New status: OPEN, RESOLVED, or CLOSED (optional)"),
			"resolution": map[string]any{
				"type":        "string",
				"description": "Resolution notes (required when status is RESOLVED)",
			},
		},
		"required": []string{"id"},
	}
}

func (t *UpdateTicketTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	id := getString(args, "id")
	if id == "" {
		return invalidArgs("update_ticket: id is required")
	}

	update := protocol.TicketUpdate{
		Title:       optString(args, "title"),
		Description: optString(args, "description"),
		Resolution:  optString(args, "resolution"),
	}
	if raw := optString(args, "status"); raw != nil {
		status := protocol.TicketStatus(*raw)
		if !status.Valid() {
			return invalidArgs("update_ticket: invalid status %q: valid statuses are OPEN, RESOLVED, CLOSED", *raw)
		}
		update.Status = &status
	}
	if update.Empty() {
		return invalidArgs("update_ticket: provide at least one of title, description, status or resolution")
	}

	res, err := t.Backend.UpdateTicket(ctx, id, update)
	if err != nil {
		return "", err
	}
	return res.Encode(), nil
}

// --- delete_ticket ---

type DeleteTicketTool struct {
	Backend Backend
}

func (t *DeleteTicketTool) Name() string { return NameDeleteTicket }
func (t *DeleteTicketTool) Description() string {
	return "Delete a ticket from the system"
}
func (t *DeleteTicketTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": "The unique identifier of the ticket to delete",
			},
		},
		"required": []string{"id"},
	}
}

func (t *DeleteTicketTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	id := getString(args, "id")
	if id == "" {
		return invalidArgs("delete_ticket: id is required")
	}

	res, err := t.Backend.DeleteTicket(ctx, id)
	if err != nil {
		return "", err
	}
	return res.Encode(), nil
}
