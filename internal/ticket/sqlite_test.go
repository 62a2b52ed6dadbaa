package ticket

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tickd-io/tickd/pkg/protocol"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tickets.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	created, err := s.Create(protocol.TicketCreate{Title: "Broken keyboard", Description: "Keys are stuck"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated ID")
	}
	if created.Status != protocol.StatusOpen {
		t.Errorf("status = %q, want OPEN", created.Status)
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Errorf("timestamps: created=%v updated=%v", created.CreatedAt, created.UpdatedAt)
	}

	got, err := s.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Broken keyboard" || got.Description != "Keys are stuck" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Resolution != nil {
		t.Errorf("resolution = %v, want nil", *got.Resolution)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirstAndFilter(t *testing.T) {
	s := newTestStore(t)

	first, _ := s.Create(protocol.TicketCreate{Title: "first", Description: "d"})
	second, _ := s.Create(protocol.TicketCreate{Title: "second", Description: "d"})

	resolved := protocol.StatusResolved
	note := "fixed"
	if _, err := s.Update(second.ID, protocol.TicketUpdate{Status: &resolved, Resolution: &note}); err != nil {
		t.Fatalf("update: %v", err)
	}

	all, err := s.List(nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	// Both creations can land in the same millisecond; accept either order
	// only if timestamps are equal, otherwise newest must come first.
	if all[0].CreatedAt.Before(all[1].CreatedAt) {
		t.Errorf("list not newest first: %v then %v", all[0].CreatedAt, all[1].CreatedAt)
	}

	open := protocol.StatusOpen
	openOnly, err := s.List(&open)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(openOnly) != 1 || openOnly[0].ID != first.ID {
		t.Errorf("open filter returned %d tickets", len(openOnly))
	}

	closed := protocol.StatusClosed
	none, err := s.List(&closed)
	if err != nil {
		t.Fatalf("list closed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("closed filter returned %d tickets, want 0", len(none))
	}
}

func TestListOrdersSameSecondRows(t *testing.T) {
	s := newTestStore(t)

	// Timestamps differing only in the fractional part must still come
	// back newest first. Insert directly so the sub-second spacing is
	// exact rather than whatever the test host's clock produces.
	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	rows := []struct {
		id string
		at time.Time
	}{
		{"older", base},
		{"newer", base.Add(500 * time.Millisecond)},
		{"newest", base.Add(999 * time.Millisecond)},
	}
	for _, r := range rows {
		ts := r.at.Format(timeLayout)
		_, err := s.db.Exec(`
			INSERT INTO tickets (id, title, description, status, created_at, updated_at)
			VALUES (?, ?, ?, 'OPEN', ?, ?)`, r.id, r.id, r.id, ts, ts)
		if err != nil {
			t.Fatalf("insert %s: %v", r.id, err)
		}
	}

	got, err := s.List(nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"newest", "newer", "older"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestUpdatePartial(t *testing.T) {
	s := newTestStore(t)
	created, _ := s.Create(protocol.TicketCreate{Title: "orig", Description: "desc"})

	newTitle := "renamed"
	updated, err := s.Update(created.ID, protocol.TicketUpdate{Title: &newTitle})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "renamed" {
		t.Errorf("title = %q", updated.Title)
	}
	if updated.Description != "desc" {
		t.Errorf("description changed: %q", updated.Description)
	}
	if updated.Status != protocol.StatusOpen {
		t.Errorf("status changed: %q", updated.Status)
	}

	resolved := protocol.StatusResolved
	note := "replaced the cable"
	updated, err = s.Update(created.ID, protocol.TicketUpdate{Status: &resolved, Resolution: &note})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != protocol.StatusResolved || updated.Resolution == nil || *updated.Resolution != note {
		t.Errorf("resolved update: %+v", updated)
	}
}

func TestUpdateNotFound(t *testing.T) {
	s := newTestStore(t)
	title := "x"
	_, err := s.Update("missing", protocol.TicketUpdate{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	created, _ := s.Create(protocol.TicketCreate{Title: "t", Description: "d"})

	if err := s.Delete(created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
	// Deleting again must report not-found, not crash.
	if err := s.Delete(created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}
