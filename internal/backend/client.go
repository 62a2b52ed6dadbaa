// Package backend is the agent-side client for the ticket REST API. It
// folds backend-reported errors the model can reason about (not-found,
// validation) into Failure results and surfaces everything else — transport
// faults, bad credentials, server errors — as Go errors that abort the turn.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tickd-io/tickd/pkg/protocol"
)

// ErrAuth is returned when the ticket service rejects the API key. The
// model cannot recover from this, so it is not folded into a Result.
var ErrAuth = errors.New("backend: invalid or missing API key")

// DefaultBaseURL is where a locally run tickd listens.
const DefaultBaseURL = "http://localhost:8080/v1"

// Client issues ticket CRUD requests against the tickd REST API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a ticket API client. baseURL should include the version
// prefix, e.g. "http://localhost:8080/v1".
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateTicket creates a new ticket and returns the created record.
func (c *Client) CreateTicket(ctx context.Context, title, description string) (Result, error) {
	return c.do(ctx, http.MethodPost, "/tickets", nil,
		protocol.TicketCreate{Title: title, Description: description})
}

// ListTickets lists tickets, optionally filtered by status. An empty status
// means no filter.
func (c *Client) ListTickets(ctx context.Context, status string) (Result, error) {
	var query url.Values
	if status != "" {
		query = url.Values{"status": []string{status}}
	}
	return c.do(ctx, http.MethodGet, "/tickets", query, nil)
}

// GetTicket fetches one ticket by ID.
func (c *Client) GetTicket(ctx context.Context, id string) (Result, error) {
	if strings.TrimSpace(id) == "" {
		return Failure(0, "ticket id must not be empty"), nil
	}
	return c.do(ctx, http.MethodGet, "/tickets/"+url.PathEscape(id), nil, nil)
}

// UpdateTicket applies a partial update to a ticket.
func (c *Client) UpdateTicket(ctx context.Context, id string, update protocol.TicketUpdate) (Result, error) {
	if strings.TrimSpace(id) == "" {
		return Failure(0, "ticket id must not be empty"), nil
	}
	if update.Empty() {
		return Failure(0, "update requires at least one of title, description, status or resolution"), nil
	}
	return c.do(ctx, http.MethodPatch, "/tickets/"+url.PathEscape(id), nil, update)
}

// DeleteTicket removes a ticket by ID.
func (c *Client) DeleteTicket(ctx context.Context, id string) (Result, error) {
	if strings.TrimSpace(id) == "" {
		return Failure(0, "ticket id must not be empty"), nil
	}
	return c.do(ctx, http.MethodDelete, "/tickets/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (Result, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Result{}, fmt.Errorf("backend: marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return Result{}, fmt.Errorf("backend: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	c.logger.Debug("backend request", "method", method, "url", u)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("backend: read response: %w", err)
	}

	c.logger.Debug("backend response", "method", method, "url", u, "status", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return Success(nil), nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var data any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &data); err != nil {
				return Result{}, fmt.Errorf("backend: parse response: %w", err)
			}
		}
		return Success(data), nil
	case resp.StatusCode == http.StatusUnauthorized:
		return Result{}, fmt.Errorf("%w: %s", ErrAuth, errorDetail(raw))
	case resp.StatusCode >= 500:
		return Result{}, fmt.Errorf("backend: server error (status %d): %s", resp.StatusCode, errorDetail(raw))
	default:
		detail := errorDetail(raw)
		c.logger.Warn("backend error", "method", method, "url", u, "status", resp.StatusCode, "detail", detail)
		return Failure(resp.StatusCode, detail), nil
	}
}

// errorDetail extracts the "detail" field from an error body, falling back
// to the raw body when no structured detail is present.
func errorDetail(raw []byte) string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return strings.TrimSpace(string(raw))
}
