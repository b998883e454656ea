package logx

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, r.Message)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func TestDedupeSuppressesRepeats(t *testing.T) {
	inner := &recordingHandler{}
	logger := slog.New(NewDedupeHandler(inner, time.Minute, 16))

	logger.Info("connect failed", "attempt", 1)
	logger.Info("connect failed", "attempt", 1)
	logger.Info("connect failed", "attempt", 1)

	assert.Equal(t, 1, inner.count())
}

func TestDedupeDistinguishesAttrs(t *testing.T) {
	inner := &recordingHandler{}
	logger := slog.New(NewDedupeHandler(inner, time.Minute, 16))

	logger.Info("connect failed", "attempt", 1)
	logger.Info("connect failed", "attempt", 2)

	assert.Equal(t, 2, inner.count())
}

func TestDedupeDisabledByZeroWindow(t *testing.T) {
	inner := &recordingHandler{}
	logger := slog.New(NewDedupeHandler(inner, 0, 16))

	logger.Info("same")
	logger.Info("same")

	assert.Equal(t, 2, inner.count())
}

func TestDedupeSharedAcrossDerivedLoggers(t *testing.T) {
	inner := &recordingHandler{}
	base := slog.New(NewDedupeHandler(inner, time.Minute, 16))
	derived := base.With("component", "worker")

	base.Warn("slow response")
	derived.Warn("slow response")

	assert.Equal(t, 1, inner.count())
}

func TestMailAttr(t *testing.T) {
	attr := Mail("a@example.com", "subject", "m1@example.com")
	assert.Equal(t, "mail", attr.Key)
	group := attr.Value.Group()
	assert.Len(t, group, 3)
}
