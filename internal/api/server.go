// Package api is the ticket service's REST surface: CRUD over tickets plus
// health and a recent-logs endpoint, authenticated with an X-API-Key header.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tickd-io/tickd/internal/logbuf"
	"github.com/tickd-io/tickd/internal/ticket"
)

// HeaderAPIKey is the request header carrying the client credential.
const HeaderAPIKey = "X-API-Key"

// Config holds API server settings.
type Config struct {
	Host string
	Port int
	Key  string // required; compared constant-time against X-API-Key
}

// Server is the ticket REST API server.
type Server struct {
	app    *fiber.App
	store  ticket.Store
	cfg    Config
	logger *slog.Logger
	logs   *logbuf.Buffer
}

// NewServer builds the fiber app and wires all routes. logs may be nil, in
// which case the logs endpoint serves an empty list.
func NewServer(store ticket.Store, cfg Config, logger *slog.Logger, logs *logbuf.Buffer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  store,
		cfg:    cfg,
		logger: logger,
		logs:   logs,
	}

	app := fiber.New(fiber.Config{
		AppName:               "tickd",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
	})
	app.Use(s.requestLogger)

	v1 := app.Group("/v1")
	v1.Get("/health", s.handleHealth)

	authed := v1.Group("", s.requireKey)
	authed.Post("/tickets", s.handleCreateTicket)
	authed.Get("/tickets", s.handleListTickets)
	authed.Get("/tickets/:id", s.handleGetTicket)
	authed.Patch("/tickets/:id", s.handleUpdateTicket)
	authed.Delete("/tickets/:id", s.handleDeleteTicket)
	authed.Get("/logs", s.handleGetLogs)

	s.app = app
	return s
}

// Start listens on the configured address and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.app.ShutdownWithTimeout(5 * time.Second)
	}()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("api server starting", "addr", addr)
	if err := s.app.Listen(addr); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Serve accepts connections from ln until ctx is cancelled. Used by tests
// that need a real port.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		s.app.ShutdownWithTimeout(5 * time.Second)
	}()
	if err := s.app.Listener(ln); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// App returns the underlying fiber app for in-process request testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// --- middleware ---

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return err
}

func (s *Server) requireKey(c *fiber.Ctx) error {
	key := c.Get(HeaderAPIKey)
	if key == "" {
		return detail(c, fiber.StatusUnauthorized, "Missing API key. Include 'X-API-Key' header.")
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Key)) != 1 {
		return detail(c, fiber.StatusUnauthorized, "Invalid API key")
	}
	return c.Next()
}

// detail writes the uniform error body the agent-side client parses.
func detail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"detail": msg})
}
