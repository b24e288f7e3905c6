package bus

import (
	"context"
	"testing"
	"time"
)

func TestLifecycleBroadcastDelivers(t *testing.T) {
	c := NewClient("amqp://unused", time.Second, nil)
	ch := c.Lifecycle()

	c.broadcast(Up)

	select {
	case l := <-ch:
		if l != Up {
			t.Fatalf("expected Up, got %v", l)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for lifecycle broadcast")
	}
}

func TestLifecycleBroadcastCoalescesWhenSlow(t *testing.T) {
	c := NewClient("amqp://unused", time.Second, nil)
	ch := c.Lifecycle()

	// Nobody reads ch yet: broadcasting twice must not block or panic,
	// and the reader should observe the latest state.
	c.broadcast(Up)
	c.broadcast(Down)

	select {
	case l := <-ch:
		if l != Down {
			t.Fatalf("expected latest state Down, got %v", l)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for lifecycle broadcast")
	}
}

func TestSubscribeRegistersBeforeRun(t *testing.T) {
	c := NewClient("amqp://unused", time.Second, nil)
	c.Subscribe("queue-a", func(ctx context.Context, body []byte) Action {
		return Ack
	})
	if len(c.subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(c.subs))
	}
	if c.subs[0].queue != "queue-a" {
		t.Fatalf("unexpected queue name %q", c.subs[0].queue)
	}
}

func TestPublishWithoutConnectionReturnsBusUnavailable(t *testing.T) {
	c := NewClient("amqp://unused", time.Second, nil)
	err := c.Publish(context.Background(), "exchange", "key", []byte("body"))
	if err == nil {
		t.Fatal("expected error when bus not connected")
	}
}
