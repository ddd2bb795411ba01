// Package notify delivers fire-and-forget notifications to users.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"govwatch/discovery-service/internal/model"
)

// Sink delivers one notification.
type Sink interface {
	Notify(ctx context.Context, n model.Notification) error
}

// BestEffort wraps a Sink so delivery failures are logged and never returned
// to the caller. A failed notification must not fail the job that raised it.
type BestEffort struct {
	sink Sink
	log  *slog.Logger
}

// NewBestEffort wraps sink. A nil sink drops everything.
func NewBestEffort(sink Sink) *BestEffort {
	return &BestEffort{sink: sink, log: slog.Default().With("component", "notify")}
}

// Send stamps n with an ID and time when missing and delivers it. It reports
// whether delivery succeeded.
func (b *BestEffort) Send(ctx context.Context, n model.Notification) bool {
	if b == nil || b.sink == nil {
		return false
	}
	n = stamp(n)
	if err := b.sink.Notify(ctx, n); err != nil {
		b.log.Warn("notification dropped",
			"type", n.Type, "recipient", n.RecipientID, "err", err)
		return false
	}
	return true
}

func stamp(n model.Notification) model.Notification {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return n
}

func encode(n model.Notification) ([]byte, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return b, nil
}

// LogSink writes notifications to the structured log. It is the fallback
// when no broker is configured.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{log: l.With("component", "notify")}
}

func (s *LogSink) Notify(_ context.Context, n model.Notification) error {
	s.log.Info("notification",
		"id", n.ID, "type", n.Type, "recipient", n.RecipientID, "title", n.Title, "message", n.Message)
	return nil
}
