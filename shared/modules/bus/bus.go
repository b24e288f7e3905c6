// Package bus wraps a single logical RabbitMQ connection with automatic
// reconnect, topology re-declaration and re-subscription, and a
// lifecycle signal other components can observe (WS-Delivery uses it to
// drive the network-status broadcaster) — a two-way, reconnecting
// wrapper around amqp091-go per spec §4.2.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tom-notifier/shared/apperr"
)

// Lifecycle is the bus wrapper's connectivity state.
type Lifecycle int

const (
	Down Lifecycle = iota
	Up
)

// Action is the disposition a Handler returns for a delivery.
type Action int

const (
	Ack Action = iota
	RejectRequeue
	RejectDrop
)

// Handler processes one delivery and reports how it should be
// acknowledged. Context is cancelled when the subscription's owning
// Client is stopped.
type Handler func(ctx context.Context, body []byte) Action

// Topology declares the exchanges, queues and bindings a service needs;
// it is re-run against a fresh channel after every reconnect.
type Topology func(ch *amqp.Channel) error

type subscription struct {
	queue   string
	handler Handler
}

// Client owns one logical connection to the bus.
type Client struct {
	url               string
	reconnectInterval time.Duration
	topology          Topology

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	subs []subscription

	lifecycleMu   sync.Mutex
	lifecycleSubs []chan Lifecycle
}

// NewClient constructs a Client. Call Subscribe for every queue the
// service consumes before calling Run, then call Run in its own
// goroutine for the life of the process.
func NewClient(url string, reconnectInterval time.Duration, topology Topology) *Client {
	return &Client{
		url:               url,
		reconnectInterval: reconnectInterval,
		topology:          topology,
	}
}

// Subscribe registers a queue consumer. Must be called before Run.
func (c *Client) Subscribe(queue string, handler Handler) {
	c.subs = append(c.subs, subscription{queue: queue, handler: handler})
}

// Lifecycle returns a channel that receives Up/Down transitions. The
// channel is buffered(1); slow readers miss intermediate transitions but
// always eventually observe the current state on the next change.
func (c *Client) Lifecycle() <-chan Lifecycle {
	ch := make(chan Lifecycle, 1)
	c.lifecycleMu.Lock()
	c.lifecycleSubs = append(c.lifecycleSubs, ch)
	c.lifecycleMu.Unlock()
	return ch
}

// CurrentLifecycle reports the connection state at the instant of the
// call. Used by WS-Delivery to send a synchronous network-status frame
// right after upgrade, reflecting state rather than waiting for the
// next transition (SPEC_FULL's supplemented on-connect frame).
func (c *Client) CurrentLifecycle() Lifecycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		return Up
	}
	return Down
}

func (c *Client) broadcast(l Lifecycle) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	for _, ch := range c.lifecycleSubs {
		select {
		case ch <- l:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- l
		}
	}
}

// Run dials the bus and keeps it connected until ctx is cancelled,
// reconnecting at a fixed interval on any disconnect and re-declaring
// topology and subscriptions each time. It never returns until ctx is
// done; the bus is never given up on.
func (c *Client) Run(ctx context.Context) {
	downAnnounced := false
	for {
		if ctx.Err() != nil {
			return
		}

		conn, ch, err := c.connect()
		if err != nil {
			slog.Warn("bus: connect failed, will retry", "error", err, "retry_in", c.reconnectInterval)
			if !downAnnounced {
				c.broadcast(Down)
				downAnnounced = true
			}
			if !sleepOrDone(ctx, c.reconnectInterval) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn, c.ch = conn, ch
		c.mu.Unlock()
		c.broadcast(Up)
		downAnnounced = false
		slog.Info("bus: connected")

		subCtx, cancelSubs := context.WithCancel(ctx)
		for _, s := range c.subs {
			go c.runSubscription(subCtx, ch, s)
		}

		closeNotify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case err := <-closeNotify:
			slog.Warn("bus: connection closed, reconnecting", "error", err)
		case <-ctx.Done():
			cancelSubs()
			_ = ch.Close()
			_ = conn.Close()
			return
		}
		cancelSubs()

		c.mu.Lock()
		c.conn, c.ch = nil, nil
		c.mu.Unlock()
		c.broadcast(Down)
		downAnnounced = true

		if !sleepOrDone(ctx, c.reconnectInterval) {
			return
		}
	}
}

func (c *Client) connect() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if c.topology != nil {
		if err := c.topology(ch); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, err
		}
	}
	return conn, ch, nil
}

func (c *Client) runSubscription(ctx context.Context, ch *amqp.Channel, s subscription) {
	msgs, err := ch.Consume(s.queue, "", false, false, false, false, nil)
	if err != nil {
		slog.Error("bus: failed to register consumer", "queue", s.queue, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			switch s.handler(ctx, msg.Body) {
			case Ack:
				_ = msg.Ack(false)
			case RejectRequeue:
				_ = msg.Nack(false, true)
			case RejectDrop:
				_ = msg.Nack(false, false)
			}
		}
	}
}

// Publish sends body to exchange under routingKey using the current
// channel. Returns apperr.ErrBusUnavailable if the bus is currently
// disconnected; callers decide whether to retry or tolerate loss (spec
// §4.2/§7).
func (c *Client) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()

	if ch == nil {
		return apperr.ErrBusUnavailable
	}

	err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
	if err != nil {
		return apperr.ErrBusUnavailable
	}
	return nil
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
