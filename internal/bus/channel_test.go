package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ruralpay/kite/internal/domain"
)

// collector gathers delivered messages behind a lock.
type collector struct {
	mu   sync.Mutex
	msgs []*domain.Message
}

func (c *collector) handler(ctx context.Context, msg *domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, have %d", n, c.count())
}

func TestPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	c := &collector{}
	if _, err := b.Subscribe(ctx, domain.TopicDecision, c.handler); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, domain.TopicDecision, []byte(`{"id":"d-1"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	c.waitFor(t, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.msgs[0].Topic != domain.TopicDecision {
		t.Errorf("unexpected topic: %s", c.msgs[0].Topic)
	}
	if string(c.msgs[0].Payload) != `{"id":"d-1"}` {
		t.Errorf("unexpected payload: %s", c.msgs[0].Payload)
	}
	if c.msgs[0].ID == "" {
		t.Error("expected generated message ID")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	decisions := &collector{}
	alerts := &collector{}
	b.Subscribe(ctx, domain.TopicDecision, decisions.handler)
	b.Subscribe(ctx, domain.TopicAlert, alerts.handler)

	b.Publish(ctx, domain.TopicDecision, []byte("a"))
	b.Publish(ctx, domain.TopicDecision, []byte("b"))
	b.Publish(ctx, domain.TopicAlert, []byte("c"))

	decisions.waitFor(t, 2)
	alerts.waitFor(t, 1)

	if decisions.count() != 2 {
		t.Errorf("expected 2 decision messages, got %d", decisions.count())
	}
	if alerts.count() != 1 {
		t.Errorf("expected 1 alert message, got %d", alerts.count())
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	a := &collector{}
	c := &collector{}
	b.Subscribe(ctx, domain.TopicAudit, a.handler)
	b.Subscribe(ctx, domain.TopicAudit, c.handler)

	b.Publish(ctx, domain.TopicAudit, []byte("event"))

	a.waitFor(t, 1)
	c.waitFor(t, 1)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	c := &collector{}
	sub, err := b.Subscribe(ctx, domain.TopicDecision, c.handler)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if sub.Topic() != domain.TopicDecision {
		t.Errorf("unexpected subscription topic: %s", sub.Topic())
	}

	b.Publish(ctx, domain.TopicDecision, []byte("first"))
	c.waitFor(t, 1)

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	// Give the handler goroutine time to observe the cancel
	time.Sleep(20 * time.Millisecond)

	b.Publish(ctx, domain.TopicDecision, []byte("second"))
	time.Sleep(50 * time.Millisecond)

	if c.count() != 1 {
		t.Errorf("expected no delivery after unsubscribe, got %d messages", c.count())
	}
}

func TestClosedBusRejectsOperations(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if err := b.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := b.Publish(ctx, domain.TopicDecision, []byte("x")); err == nil {
		t.Error("expected publish on closed bus to fail")
	}
	if _, err := b.Subscribe(ctx, domain.TopicDecision, func(context.Context, *domain.Message) error { return nil }); err == nil {
		t.Error("expected subscribe on closed bus to fail")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("expected ping on closed bus to fail")
	}

	// Closing twice is fine
	if err := b.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestPublishWithoutSubscribersSucceeds(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	if err := b.Publish(context.Background(), "kite.nobody", []byte("x")); err != nil {
		t.Errorf("publish to empty topic failed: %v", err)
	}
}
