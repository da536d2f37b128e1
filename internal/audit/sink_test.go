package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ruralpay/kite/internal/domain"
)

// fakeBus records published payloads per topic.
type fakeBus struct {
	published map[string][][]byte
	failWith  error
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string][][]byte)}
}

func (b *fakeBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.failWith != nil {
		return b.failWith
	}
	b.published[topic] = append(b.published[topic], payload)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBus) Ping(ctx context.Context) error { return nil }
func (b *fakeBus) Close() error                   { return nil }

type countingSink struct {
	count int
}

func (s *countingSink) Emit(ctx context.Context, event *domain.AuditEvent) {
	s.count++
}

func TestBusSinkPublishesToAuditTopic(t *testing.T) {
	bus := newFakeBus()
	sink := NewBusSink(bus)

	event := &domain.AuditEvent{
		Type:    domain.EventFraudAnalysis,
		UserID:  "u1",
		Details: map[string]any{"combinedScore": 0.42},
	}
	sink.Emit(context.Background(), event)

	msgs := bus.published[domain.TopicAudit]
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message on %s, got %d", domain.TopicAudit, len(msgs))
	}

	var decoded domain.AuditEvent
	if err := json.Unmarshal(msgs[0], &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded.Type != domain.EventFraudAnalysis || decoded.UserID != "u1" {
		t.Errorf("unexpected event: %+v", decoded)
	}
}

func TestBusSinkSwallowsPublishFailure(t *testing.T) {
	bus := newFakeBus()
	bus.failWith = errors.New("broker down")
	sink := NewBusSink(bus)

	// Must not panic, the caller never sees audit failures
	sink.Emit(context.Background(), &domain.AuditEvent{Type: domain.EventFailedAuth, UserID: "u1"})
}

func TestMultiSinkFansOut(t *testing.T) {
	a := &countingSink{}
	b := &countingSink{}
	sink := NewMultiSink(a, b)

	sink.Emit(context.Background(), &domain.AuditEvent{Type: domain.EventFraudAnalysis, UserID: "u1"})
	sink.Emit(context.Background(), &domain.AuditEvent{Type: domain.EventFraudAnalysis, UserID: "u2"})

	if a.count != 2 || b.count != 2 {
		t.Errorf("expected both sinks to see 2 events, got %d and %d", a.count, b.count)
	}
}

func TestMultiSinkSkipsNil(t *testing.T) {
	a := &countingSink{}
	sink := NewMultiSink(nil, a, nil)

	if len(sink) != 1 {
		t.Fatalf("expected nil sinks to be dropped, got %d entries", len(sink))
	}

	sink.Emit(context.Background(), &domain.AuditEvent{Type: domain.EventFailedAuth, UserID: "u1"})
	if a.count != 1 {
		t.Errorf("expected 1 event, got %d", a.count)
	}
}
