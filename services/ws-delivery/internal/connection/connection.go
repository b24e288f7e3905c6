// Package connection implements the per-connection push engine (spec
// §4.3): exactly one goroutine owns inflight/outbox/retry state for a
// socket, fed by channels so no intra-connection locking is needed
// (spec §5, "WS-Delivery concurrency").
package connection

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tom-notifier/shared/wire"
)

// FrameWriter sends a frame over the wire and reports failure (socket
// error), or closes the underlying socket with a reason.
type FrameWriter interface {
	WriteFrame(frame wire.WSFrame) error
	Close(reason string) error
}

// ConfirmationPublisher is the subset of the bus publisher this package
// needs, narrowed so tests can substitute a fake.
type ConfirmationPublisher interface {
	PublishConfirmation(ctx context.Context, notificationID string, userID uuid.UUID)
}

// Unregisterer is called exactly once, on close, so the fan-out
// registry never outlives a dead connection (spec §4.4).
type Unregisterer interface {
	Unregister(userID, connID uuid.UUID)
}

type inflightFrame struct {
	frame       wire.WSFrame
	attempts    int
	nextRetryAt time.Time
}

// Connection is one push engine. Create with New, then run its Run
// loop in its own goroutine for the socket's lifetime.
type Connection struct {
	id       uuid.UUID
	userID   uuid.UUID
	deviceID uuid.UUID

	writer     FrameWriter
	publisher  ConfirmationPublisher
	registry   Unregisterer

	pingInterval  time.Duration
	retryInterval time.Duration
	retryMaxCount int

	enqueueCh chan wire.WSFrame
	ackCh     chan uuid.UUID

	inflight map[uuid.UUID]*inflightFrame
}

type Options struct {
	BufferSize    int
	PingInterval  time.Duration
	RetryInterval time.Duration
	RetryMaxCount int
}

func New(userID, deviceID uuid.UUID, writer FrameWriter, publisher ConfirmationPublisher, registry Unregisterer, opts Options) *Connection {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 16
	}
	return &Connection{
		id:            uuid.New(),
		userID:        userID,
		deviceID:      deviceID,
		writer:        writer,
		publisher:     publisher,
		registry:      registry,
		pingInterval:  opts.PingInterval,
		retryInterval: opts.RetryInterval,
		retryMaxCount: opts.RetryMaxCount,
		enqueueCh:     make(chan wire.WSFrame, opts.BufferSize),
		ackCh:         make(chan uuid.UUID, 8),
		inflight:      make(map[uuid.UUID]*inflightFrame),
	}
}

func (c *Connection) ID() uuid.UUID { return c.id }

// TryEnqueue pushes frame onto the bounded outbox without blocking, so
// the caller's registry Deliver call is non-blocking by construction. A
// full outbox makes it return false and drop the frame; the connection
// is not marked lagged or closed because of it.
func (c *Connection) TryEnqueue(frame wire.WSFrame) bool {
	select {
	case c.enqueueCh <- frame:
		return true
	default:
		return false
	}
}

// Ack forwards a client acknowledgement into the run loop. Called by
// the goroutine reading the socket.
func (c *Connection) Ack(messageID uuid.UUID) {
	select {
	case c.ackCh <- messageID:
	default:
	}
}

// Run owns inflight/outbox/retry state exclusively until ctx is
// cancelled or the connection is torn down for unresponsiveness.
func (c *Connection) Run(ctx context.Context) {
	defer c.registry.Unregister(c.userID, c.id)

	pingDeadline := time.Now().Add(c.pingInterval)
	timer := time.NewTimer(c.pingInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.writer.Close("shutdown")
			return

		case frame, ok := <-c.enqueueCh:
			if !ok {
				return
			}
			c.transmit(frame)
			resetTimer(timer, c.nextWake(pingDeadline))

		case messageID := <-c.ackCh:
			c.onAck(ctx, messageID)
			resetTimer(timer, c.nextWake(pingDeadline))

		case <-timer.C:
			if time.Now().After(pingDeadline) && c.isIdle() {
				c.transmit(wire.WSFrame{Ping: true})
				pingDeadline = time.Now().Add(c.pingInterval)
			}
			if closed := c.retryDue(); closed {
				_ = c.writer.Close("unresponsive")
				return
			}
			resetTimer(timer, c.nextWake(pingDeadline))
		}
	}
}

func (c *Connection) isIdle() bool {
	return len(c.inflight) == 0
}

func (c *Connection) transmit(frame wire.WSFrame) {
	frame.MessageID = uuid.New()
	frame.MessageTimestamp = time.Now()

	if err := c.writer.WriteFrame(frame); err != nil {
		slog.Warn("connection: write failed", "conn_id", c.id, "error", err)
	}
	c.inflight[frame.MessageID] = &inflightFrame{
		frame:       frame,
		attempts:    0,
		nextRetryAt: time.Now().Add(c.retryInterval),
	}
}

func (c *Connection) onAck(ctx context.Context, messageID uuid.UUID) {
	entry, ok := c.inflight[messageID]
	if !ok {
		return
	}
	delete(c.inflight, messageID)

	n := entry.frame.Notification
	if n != nil && n.Status == wire.StatusNew {
		c.publisher.PublishConfirmation(ctx, n.ID, c.userID)
	}
}

// retryDue resends every inflight frame whose nextRetryAt has elapsed.
// Returns true if the connection should close because the oldest frame
// exhausted retryMaxCount (spec §4.3 on_retry_due, §8 Testable Property
// 6 "Retry bound").
func (c *Connection) retryDue() bool {
	now := time.Now()
	for id, entry := range c.inflight {
		if entry.nextRetryAt.After(now) {
			continue
		}
		if entry.attempts >= c.retryMaxCount {
			return true
		}
		if err := c.writer.WriteFrame(entry.frame); err != nil {
			slog.Warn("connection: retry write failed", "conn_id", c.id, "message_id", id, "error", err)
		}
		entry.attempts++
		entry.nextRetryAt = now.Add(c.retryInterval)
	}
	return false
}

func (c *Connection) nextWake(pingDeadline time.Time) time.Duration {
	wake := pingDeadline
	for _, entry := range c.inflight {
		if entry.nextRetryAt.Before(wake) {
			wake = entry.nextRetryAt
		}
	}
	d := time.Until(wake)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
