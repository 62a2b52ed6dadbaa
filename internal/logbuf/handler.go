package logbuf

import (
	"context"
	"log/slog"
)

// Handler tees slog records into a Buffer while delegating to an inner
// handler. The buffer captures every level; the inner handler keeps its own
// level filter.
type Handler struct {
	inner slog.Handler
	buf   *Buffer
	bound []slog.Attr
}

// NewHandler wraps inner so every record is also recorded in buf.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var attrs map[string]any
	add := func(a slog.Attr) {
		if attrs == nil {
			attrs = make(map[string]any)
		}
		v := a.Value.Resolve().Any()
		if err, ok := v.(error); ok {
			// errors marshal to {} as JSON; keep the message instead
			v = err.Error()
		}
		attrs[a.Key] = v
	}
	for _, a := range h.bound {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})

	h.buf.Add(Entry{Time: r.Time, Level: r.Level.String(), Message: r.Message, Attrs: attrs})

	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		inner: h.inner.WithAttrs(attrs),
		buf:   h.buf,
		bound: append(h.bound[:len(h.bound):len(h.bound)], attrs...),
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	// Group nesting is flattened in the buffer; the inner handler keeps it.
	return &Handler{inner: h.inner.WithGroup(name), buf: h.buf, bound: h.bound}
}
