package protocol

import (
	"fmt"
	"time"
)

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	StatusOpen     TicketStatus = "OPEN"
	StatusResolved TicketStatus = "RESOLVED"
	StatusClosed   TicketStatus = "CLOSED"
)

// Statuses lists every valid ticket status, in lifecycle order.
func Statuses() []TicketStatus {
	return []TicketStatus{StatusOpen, StatusResolved, StatusClosed}
}

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Field length limits enforced by the ticket service.
const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 5000
	MaxResolutionLen  = 2000
)

// Ticket is a support ticket. The ticket service owns and mutates it; the
// agent only ever holds transient copies returned from API calls.
type Ticket struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      TicketStatus `json:"status"`
	Resolution  *string      `json:"resolution,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TicketCreate is the request payload for creating a ticket.
type TicketCreate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Validate checks the creation payload against the field constraints.
func (c TicketCreate) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("title must not be empty")
	}
	if len(c.Title) > MaxTitleLen {
		return fmt.Errorf("title must be at most %d characters", MaxTitleLen)
	}
	if c.Description == "" {
		return fmt.Errorf("description must not be empty")
	}
	if len(c.Description) > MaxDescriptionLen {
		return fmt.Errorf("description must be at most %d characters", MaxDescriptionLen)
	}
	return nil
}

// TicketUpdate is the request payload for a partial ticket update. Nil
// fields are left unchanged.
type TicketUpdate struct {
	Title       *string       `json:"title,omitempty"`
	Description *string       `json:"description,omitempty"`
	Status      *TicketStatus `json:"status,omitempty"`
	Resolution  *string       `json:"resolution,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u TicketUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil && u.Resolution == nil
}

// Validate checks the update payload against the field constraints. The
// resolution-required-when-RESOLVED rule needs the existing ticket and is
// enforced by the service, not here.
func (u TicketUpdate) Validate() error {
	if u.Title != nil {
		if *u.Title == "" {
			return fmt.Errorf("title must not be empty")
		}
		if len(*u.Title) > MaxTitleLen {
			return fmt.Errorf("title must be at most %d characters", MaxTitleLen)
		}
	}
	if u.Description != nil {
		if *u.Description == "" {
			return fmt.Errorf("description must not be empty")
		}
		if len(*u.Description) > MaxDescriptionLen {
			return fmt.Errorf("description must be at most %d characters", MaxDescriptionLen)
		}
	}
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("invalid status %q: valid statuses are OPEN, RESOLVED, CLOSED", *u.Status)
	}
	if u.Resolution != nil && len(*u.Resolution) > MaxResolutionLen {
		return fmt.Errorf("resolution must be at most %d characters", MaxResolutionLen)
	}
	return nil
}
