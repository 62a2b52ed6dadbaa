package api

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tickd-io/tickd/internal/logbuf"
	"github.com/tickd-io/tickd/internal/ticket"
	"github.com/tickd-io/tickd/pkg/protocol"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleCreateTicket(c *fiber.Ctx) error {
	var req protocol.TicketCreate
	if err := c.BodyParser(&req); err != nil {
		return detail(c, fiber.StatusUnprocessableEntity, "invalid request body: expected JSON with title and description")
	}
	if err := req.Validate(); err != nil {
		return detail(c, fiber.StatusUnprocessableEntity, err.Error())
	}

	t, err := s.store.Create(req)
	if err != nil {
		return s.internal(c, "create ticket", err)
	}
	s.logger.Info("ticket created", "id", t.ID, "title", t.Title)
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (s *Server) handleListTickets(c *fiber.Ctx) error {
	var filter *protocol.TicketStatus
	if raw := c.Query("status"); raw != "" {
		status := protocol.TicketStatus(raw)
		if !status.Valid() {
			return detail(c, fiber.StatusUnprocessableEntity,
				fmt.Sprintf("invalid status %q: valid statuses are OPEN, RESOLVED, CLOSED", raw))
		}
		filter = &status
	}

	tickets, err := s.store.List(filter)
	if err != nil {
		return s.internal(c, "list tickets", err)
	}
	return c.JSON(tickets)
}

func (s *Server) handleGetTicket(c *fiber.Ctx) error {
	id := c.Params("id")
	t, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return detail(c, fiber.StatusNotFound, fmt.Sprintf("Ticket with ID '%s' not found", id))
		}
		return s.internal(c, "get ticket", err)
	}
	return c.JSON(t)
}

func (s *Server) handleUpdateTicket(c *fiber.Ctx) error {
	id := c.Params("id")

	var req protocol.TicketUpdate
	if err := c.BodyParser(&req); err != nil {
		return detail(c, fiber.StatusUnprocessableEntity, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return detail(c, fiber.StatusUnprocessableEntity, err.Error())
	}

	existing, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return detail(c, fiber.StatusNotFound, fmt.Sprintf("Ticket with ID '%s' not found", id))
		}
		return s.internal(c, "get ticket", err)
	}

	// A ticket can only become RESOLVED with a resolution note, either
	// provided in this update or already present on the ticket.
	if req.Status != nil && *req.Status == protocol.StatusResolved &&
		req.Resolution == nil && existing.Resolution == nil {
		return detail(c, fiber.StatusUnprocessableEntity,
			"Resolution is required when setting status to RESOLVED")
	}

	t, err := s.store.Update(id, req)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return detail(c, fiber.StatusNotFound, fmt.Sprintf("Ticket with ID '%s' not found", id))
		}
		return s.internal(c, "update ticket", err)
	}
	s.logger.Info("ticket updated", "id", t.ID, "status", t.Status)
	return c.JSON(t)
}

func (s *Server) handleDeleteTicket(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.store.Delete(id); err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return detail(c, fiber.StatusNotFound, fmt.Sprintf("Ticket with ID '%s' not found", id))
		}
		return s.internal(c, "delete ticket", err)
	}
	s.logger.Info("ticket deleted", "id", id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	if s.logs == nil {
		return c.JSON([]logbuf.Entry{})
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return detail(c, fiber.StatusUnprocessableEntity, "invalid 'since': expected RFC3339 timestamp")
		}
		since = parsed
	}

	minLevel := slog.LevelInfo
	if raw := c.Query("level"); raw != "" {
		if err := minLevel.UnmarshalText([]byte(raw)); err != nil {
			return detail(c, fiber.StatusUnprocessableEntity, "invalid 'level': expected DEBUG, INFO, WARN or ERROR")
		}
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return detail(c, fiber.StatusUnprocessableEntity, "invalid 'limit': expected a positive integer")
		}
		limit = parsed
	}

	entries := s.logs.Query(since, minLevel, limit)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	return c.JSON(entries)
}

func (s *Server) internal(c *fiber.Ctx, op string, err error) error {
	s.logger.Error(op+" failed", "error", err)
	return detail(c, fiber.StatusInternalServerError, "internal server error")
}
