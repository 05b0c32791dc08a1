package bus

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/leadaging/internal/domain"
)

func collect(t *testing.T, b domain.EventBus, tenantID, topic string) (<-chan *domain.Message, domain.Subscription) {
	t.Helper()
	ch := make(chan *domain.Message, 16)
	sub, err := b.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return ch, sub
}

func await(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func expectNone(t *testing.T, ch <-chan *domain.Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %s on %s", msg.ID, msg.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		ch, _ := collect(t, bus, tenantID, domain.TopicAnalysisRequested)

		if err := bus.Publish(ctx, tenantID, domain.TopicAnalysisRequested, []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		msg := await(t, ch)
		if string(msg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got '%s'", string(msg.Payload))
		}
		if msg.TenantID != tenantID {
			t.Errorf("expected tenantID '%s', got '%s'", tenantID, msg.TenantID)
		}
		if msg.ID == "" || msg.Timestamp == 0 {
			t.Error("expected message id and timestamp")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		ch1, _ := collect(t, bus, "tenant-001", "isolation.topic")
		ch2, _ := collect(t, bus, "tenant-002", "isolation.topic")

		_ = bus.Publish(ctx, "tenant-001", "isolation.topic", []byte("msg1"))

		await(t, ch1)
		expectNone(t, ch2)
	})

	t.Run("AllTenants", func(t *testing.T) {
		all, _ := collect(t, bus, domain.AllTenants, "fanin.topic")

		_ = bus.Publish(ctx, "tenant-001", "fanin.topic", []byte("a"))
		_ = bus.Publish(ctx, "tenant-002", "fanin.topic", []byte("b"))

		first := await(t, all)
		second := await(t, all)
		if first.TenantID != "tenant-001" || second.TenantID != "tenant-002" {
			t.Errorf("expected messages from both tenants, got %s and %s", first.TenantID, second.TenantID)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := bus.Publish(ctx, "", "topic", []byte("data")); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if err := bus.Publish(ctx, domain.AllTenants, "topic", []byte("data")); err == nil {
			t.Error("expected error when publishing to all tenants")
		}

		_, err := bus.Subscribe(ctx, "", "topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		ch, sub := collect(t, bus, tenantID, "unsub.topic")

		_ = bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg1"))
		await(t, ch)

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}

		_ = bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg2"))
		expectNone(t, ch)
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		ch1, _ := collect(t, bus, tenantID, "multi.topic")
		ch2, _ := collect(t, bus, tenantID, "multi.topic")

		_ = bus.Publish(ctx, tenantID, "multi.topic", []byte("broadcast"))

		await(t, ch1)
		await(t, ch2)
	})

	t.Run("PublishJSON", func(t *testing.T) {
		ch, _ := collect(t, bus, tenantID, domain.TopicAgingAlert)

		alert := domain.AgingAlert{
			TenantID:        tenantID,
			Analysis:        domain.AgingAnalysis{LeadID: "lead-9", RiskLevel: domain.RiskCritical},
			NotificationDue: true,
		}
		if err := PublishJSON(ctx, bus, tenantID, domain.TopicAgingAlert, alert); err != nil {
			t.Fatalf("PublishJSON failed: %v", err)
		}

		var got domain.AgingAlert
		if err := json.Unmarshal(await(t, ch).Payload, &got); err != nil {
			t.Fatalf("payload is not an alert: %v", err)
		}
		if got.Analysis.LeadID != "lead-9" || !got.NotificationDue {
			t.Errorf("unexpected alert %+v", got)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		_, sub := collect(t, bus, tenantID, "my.topic")
		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	_, _ = collect(t, bus, "tenant-001", "close.topic")

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if err := bus.Publish(ctx, "tenant-001", "close.topic", []byte("data")); err == nil {
		t.Error("expected error after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestSubject(t *testing.T) {
	if got := Subject("acme", domain.TopicLeadUpserted); got != "leadaging.acme.leadaging.lead.upserted" {
		t.Errorf("unexpected subject %q", got)
	}
	if got := Subject(domain.AllTenants, "x"); got != "leadaging.*.x" {
		t.Errorf("unexpected wildcard subject %q", got)
	}
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-load"

	const messageCount = 100
	var received atomic.Int32
	done := make(chan struct{})

	_, err := bus.Subscribe(ctx, tenantID, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		if received.Add(1) == messageCount {
			close(done)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	for i := 0; i < messageCount; i++ {
		_ = bus.Publish(ctx, tenantID, "load.topic", []byte("msg"))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}
