package ticket

import (
	"errors"

	"github.com/tickd-io/tickd/pkg/protocol"
)

// ErrNotFound is returned when no ticket exists with the requested ID.
var ErrNotFound = errors.New("ticket not found")

// Store is the persistence interface for tickets.
type Store interface {
	// Create stores a new ticket with a server-generated ID and returns it.
	Create(create protocol.TicketCreate) (*protocol.Ticket, error)
	// Get retrieves a ticket by ID. Returns ErrNotFound if it does not exist.
	Get(id string) (*protocol.Ticket, error)
	// List returns tickets, newest first, optionally filtered by status.
	List(status *protocol.TicketStatus) ([]*protocol.Ticket, error)
	// Update applies a partial update and returns the updated ticket.
	// Returns ErrNotFound if the ticket does not exist.
	Update(id string, update protocol.TicketUpdate) (*protocol.Ticket, error)
	// Delete removes a ticket. Returns ErrNotFound if it does not exist.
	Delete(id string) error
}
