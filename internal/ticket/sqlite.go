package ticket

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tickd-io/tickd/pkg/protocol"
)

// timeLayout is fixed-width so TEXT timestamps sort lexically in
// chronological order. RFC3339Nano drops trailing fractional zeros, which
// breaks ORDER BY for same-second rows.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'OPEN',
			resolution  TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets(created_at);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(create protocol.TicketCreate) (*protocol.Ticket, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	t := &protocol.Ticket{
		ID:          uuid.NewString(),
		Title:       create.Title,
		Description: create.Description,
		Status:      protocol.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.Exec(`
		INSERT INTO tickets (id, title, description, status, resolution, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, string(t.Status), t.Resolution,
		t.CreatedAt.Format(timeLayout), t.UpdatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("ticket store: create: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Get(id string) (*protocol.Ticket, error) {
	row := s.db.QueryRow(`
		SELECT id, title, description, status, resolution, created_at, updated_at
		FROM tickets WHERE id = ?`, id)

	t, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) List(status *protocol.TicketStatus) ([]*protocol.Ticket, error) {
	query := `SELECT id, title, description, status, resolution, created_at, updated_at FROM tickets`
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	tickets := make([]*protocol.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ticket store: list rows: %w", err)
	}
	return tickets, nil
}

func (s *SQLiteStore) Update(id string, update protocol.TicketUpdate) (*protocol.Ticket, error) {
	t, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		t.Title = *update.Title
	}
	if update.Description != nil {
		t.Description = *update.Description
	}
	if update.Status != nil {
		t.Status = *update.Status
	}
	if update.Resolution != nil {
		t.Resolution = update.Resolution
	}
	t.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	_, err = s.db.Exec(`
		UPDATE tickets SET title = ?, description = ?, status = ?, resolution = ?, updated_at = ?
		WHERE id = ?
	`, t.Title, t.Description, string(t.Status), t.Resolution,
		t.UpdatedAt.Format(timeLayout), id)
	if err != nil {
		return nil, fmt.Errorf("ticket store: update: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ticket store: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ticket store: delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*protocol.Ticket, error) {
	var (
		t          protocol.Ticket
		status     string
		resolution sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &resolution, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Status = protocol.TicketStatus(status)
	if resolution.Valid {
		t.Resolution = &resolution.String
	}
	var err error
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &t, nil
}
