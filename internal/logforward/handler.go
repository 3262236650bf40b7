// Package logforward tees warning and error log records to the overlay so the
// user sees configuration and capture problems without a terminal.
package logforward

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"slices"
	"time"
)

// Entry is a forwarded log record.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Group   string            `json:"group,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Func receives forwarded entries. It must not log at or above the forwarding
// threshold through the same handler.
type Func func(Entry)

// TeeHandler passes every record to base and forwards records at or above
// minLevel to fn. Attributes added with WithAttrs and on the record are
// flattened into Entry.Attrs using dotted group keys.
type TeeHandler struct {
	base     slog.Handler
	fn       Func
	minLevel slog.Leveler
	group    string
	attrs    []slog.Attr
}

// NewTeeHandler wraps base. A nil fn only delegates.
func NewTeeHandler(base slog.Handler, minLevel slog.Leveler, fn Func) *TeeHandler {
	return &TeeHandler{base: base, fn: fn, minLevel: minLevel}
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards to base first. fn runs even if base fails; the base error is
// returned.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)
	if h.fn == nil || record.Level < h.minLevel.Level() {
		return err
	}

	entry := Entry{
		Time:    record.Time,
		Level:   record.Level.String(),
		Message: record.Message,
		Group:   h.group,
	}
	if n := len(h.attrs) + record.NumAttrs(); n > 0 {
		entry.Attrs = make(map[string]string, n)
		for _, a := range h.attrs {
			flatten(entry.Attrs, "", a)
		}
		prefix := ""
		if h.group != "" {
			prefix = h.group + "."
		}
		record.Attrs(func(a slog.Attr) bool {
			flatten(entry.Attrs, prefix, a)
			return true
		})
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				// stderr, not slog: logging here would re-enter this handler.
				fmt.Fprintf(os.Stderr, "[log-forward] callback panicked: %v\n%s\n", r, debug.Stack())
			}
		}()
		h.fn(entry)
	}()
	return err
}

func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	prefixed := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	prefixed = append(prefixed, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		prefixed = append(prefixed, a)
	}
	return &TeeHandler{
		base:     h.base.WithAttrs(attrs),
		fn:       h.fn,
		minLevel: h.minLevel,
		group:    h.group,
		attrs:    prefixed,
	}
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &TeeHandler{
		base:     h.base.WithGroup(name),
		fn:       h.fn,
		minLevel: h.minLevel,
		group:    group,
		attrs:    slices.Clone(h.attrs),
	}
}

func flatten(dst map[string]string, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			flatten(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[prefix+a.Key] = v.String()
}
