package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func waitFor(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var receivedMsg *domain.Message
		var wg sync.WaitGroup
		wg.Add(1)

		_, err := bus.Subscribe(ctx, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			receivedMsg = msg
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, domain.TopicAlert, []byte("QUALITY ALERT")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		waitFor(t, &wg)

		if string(receivedMsg.Payload) != "QUALITY ALERT" {
			t.Errorf("expected payload 'QUALITY ALERT', got '%s'", string(receivedMsg.Payload))
		}
		if receivedMsg.Topic != domain.TopicAlert {
			t.Errorf("expected topic %s, got %s", domain.TopicAlert, receivedMsg.Topic)
		}
		if receivedMsg.ID == "" || receivedMsg.Timestamp == 0 {
			t.Error("expected message id and timestamp")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var alerts, saved atomic.Int32
		var wg sync.WaitGroup
		wg.Add(1)

		bus.Subscribe(ctx, "isolation.alert", func(ctx context.Context, msg *domain.Message) error {
			alerts.Add(1)
			wg.Done()
			return nil
		})
		bus.Subscribe(ctx, "isolation.saved", func(ctx context.Context, msg *domain.Message) error {
			saved.Add(1)
			return nil
		})

		bus.Publish(ctx, "isolation.alert", []byte("x"))
		waitFor(t, &wg)
		time.Sleep(20 * time.Millisecond)

		if alerts.Load() != 1 {
			t.Errorf("expected 1 alert message, got %d", alerts.Load())
		}
		if saved.Load() != 0 {
			t.Errorf("expected no message on other topic, got %d", saved.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count atomic.Int32
		var wg sync.WaitGroup
		wg.Add(3)

		for i := 0; i < 3; i++ {
			bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
				count.Add(1)
				wg.Done()
				return nil
			})
		}

		bus.Publish(ctx, "multi.topic", []byte("fan-out"))
		waitFor(t, &wg)

		if count.Load() != 3 {
			t.Errorf("expected 3 deliveries, got %d", count.Load())
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, err := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		if sub.Topic() != "unsub.topic" {
			t.Errorf("expected topic unsub.topic, got %s", sub.Topic())
		}

		sub.Unsubscribe()
		bus.Publish(ctx, "unsub.topic", []byte("late"))
		time.Sleep(20 * time.Millisecond)

		if count.Load() != 0 {
			t.Errorf("expected no delivery after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(10)
	ctx := context.Background()

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	if err := bus.Publish(ctx, "x", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on publish, got %v", err)
	}
	if _, err := bus.Subscribe(ctx, "x", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on subscribe, got %v", err)
	}
	if err := bus.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on ping, got %v", err)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("None", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "none"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if b != nil {
			t.Error("expected nil bus for type none")
		}
	})

	t.Run("Channel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer b.Close()
		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("expected *ChannelBus, got %T", b)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported bus type")
		}
	})
}

func TestChannelBusFullBufferDropsMessages(t *testing.T) {
	bus := NewChannelBus(1)
	defer bus.Close()
	ctx := context.Background()

	release := make(chan struct{})
	var handled atomic.Int32
	bus.Subscribe(ctx, "slow.topic", func(ctx context.Context, msg *domain.Message) error {
		<-release
		handled.Add(1)
		return nil
	})

	for i := 0; i < 50; i++ {
		if err := bus.Publish(ctx, "slow.topic", []byte("m")); err != nil {
			t.Fatalf("publish should never block or fail: %v", err)
		}
	}
	close(release)
	time.Sleep(50 * time.Millisecond)

	if n := handled.Load(); n == 0 || n > 3 {
		t.Errorf("expected a handful of deliveries with buffer 1, got %d", n)
	}
}
