// Package audit provides fire-and-forget sinks for security events.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ruralpay/kite/internal/domain"
)

// LogSink writes audit events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-backed sink. A nil logger uses the default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit logs the event.
func (s *LogSink) Emit(ctx context.Context, event *domain.AuditEvent) {
	s.logger.InfoContext(ctx, "audit event",
		"event_type", event.Type,
		"user_id", event.UserID,
		"details", event.Details,
	)
}

// BusSink publishes audit events onto the event bus audit topic so
// downstream consumers (case management, SIEM forwarders) can react.
type BusSink struct {
	bus domain.EventBus
}

// NewBusSink creates a bus-backed sink.
func NewBusSink(bus domain.EventBus) *BusSink {
	return &BusSink{bus: bus}
}

// Emit publishes the event. Publish failures are logged and swallowed.
func (s *BusSink) Emit(ctx context.Context, event *domain.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode audit event", "event_type", event.Type, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, domain.TopicAudit, payload); err != nil {
		slog.Warn("failed to publish audit event", "event_type", event.Type, "error", err)
	}
}

// MultiSink fans an event out to several sinks.
type MultiSink []domain.AuditSink

// NewMultiSink combines sinks, skipping nil entries.
func NewMultiSink(sinks ...domain.AuditSink) MultiSink {
	var out MultiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Emit forwards the event to every sink.
func (m MultiSink) Emit(ctx context.Context, event *domain.AuditEvent) {
	for _, s := range m {
		s.Emit(ctx, event)
	}
}
