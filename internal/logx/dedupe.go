// Package logx provides logging helpers: a repeat-suppressing slog handler
// and the structured mail-context attribute group.
package logx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DedupeHandler wraps another slog handler and drops records identical to
// one it has already emitted within the suppression window. The last-seen
// state is owned here, never by the pipeline.
type DedupeHandler struct {
	inner  slog.Handler
	window time.Duration
	max    int

	mu    sync.Mutex
	seen  map[string]time.Time
	order []string
}

// NewDedupeHandler creates a DedupeHandler. A non-positive window disables
// suppression; max bounds the number of tracked record keys.
func NewDedupeHandler(inner slog.Handler, window time.Duration, max int) *DedupeHandler {
	if max <= 0 {
		max = 256
	}
	return &DedupeHandler{
		inner:  inner,
		window: window,
		max:    max,
		seen:   make(map[string]time.Time),
	}
}

func (h *DedupeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *DedupeHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.window > 0 && h.suppress(r) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *DedupeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &child{inner: h.inner.WithAttrs(attrs), parent: h}
}

func (h *DedupeHandler) WithGroup(name string) slog.Handler {
	return &child{inner: h.inner.WithGroup(name), parent: h}
}

func (h *DedupeHandler) suppress(r slog.Record) bool {
	key := recordKey(r)

	h.mu.Lock()
	defer h.mu.Unlock()

	if last, ok := h.seen[key]; ok && r.Time.Sub(last) < h.window {
		return true
	}
	if _, ok := h.seen[key]; !ok {
		h.order = append(h.order, key)
		for len(h.order) > h.max {
			delete(h.seen, h.order[0])
			h.order = h.order[1:]
		}
	}
	h.seen[key] = r.Time
	return false
}

// child handlers share the parent's last-seen state so derived loggers
// participate in the same suppression.
type child struct {
	inner  slog.Handler
	parent *DedupeHandler
}

func (c *child) Enabled(ctx context.Context, level slog.Level) bool {
	return c.inner.Enabled(ctx, level)
}

func (c *child) Handle(ctx context.Context, r slog.Record) error {
	if c.parent.window > 0 && c.parent.suppress(r) {
		return nil
	}
	return c.inner.Handle(ctx, r)
}

func (c *child) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &child{inner: c.inner.WithAttrs(attrs), parent: c.parent}
}

func (c *child) WithGroup(name string) slog.Handler {
	return &child{inner: c.inner.WithGroup(name), parent: c.parent}
}

func recordKey(r slog.Record) string {
	var b strings.Builder
	b.WriteString(r.Level.String())
	b.WriteByte('|')
	b.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, "|%s=%v", a.Key, a.Value)
		return true
	})
	return b.String()
}

// Mail builds the structured mail-context group attached to routing logs.
func Mail(from, subject, messageID string) slog.Attr {
	return slog.Group("mail",
		slog.String("from", from),
		slog.String("subject", subject),
		slog.String("message_id", messageID),
	)
}
