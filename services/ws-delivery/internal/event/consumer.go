package event

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tom-notifier/shared/bus"
	"github.com/tom-notifier/shared/wire"
)

// deduper is the subset of *dedup.Cache this consumer needs, narrowed
// so tests can substitute a fake.
type deduper interface {
	SeenOrRecord(notificationID, status string) bool
}

// Dispatcher fans a surviving event out to its recipients: the user set
// named in UserIDs for a targeted notification, or every connected user
// for a broadcast (spec §3 data model, §9 "Per-user broadcast
// fan-out").
type Dispatcher func(event wire.NotificationEvent, frame wire.WSFrame)

// Consumer filters redelivered NotificationEvents through a dedup cache
// before handing surviving events to Dispatch (spec §4.5/§4.6 wiring
// point). It never touches the repository: Open Question #2 resolves
// that dedup/fan-out do not re-check notification expiry.
type Consumer struct {
	dedup    deduper
	dispatch Dispatcher
}

func NewConsumer(dedup deduper, dispatch Dispatcher) *Consumer {
	return &Consumer{dedup: dedup, dispatch: dispatch}
}

// Handle decodes the delivery, dedup-filters it, and dispatches on
// first sight. Malformed bodies are dropped rather than requeued: a
// body Core itself produced will never fail to unmarshal, so a failure
// here indicates corruption, not a transient condition.
func (c *Consumer) Handle(_ context.Context, body []byte) bus.Action {
	var event wire.NotificationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		slog.Warn("event: dropping malformed notification event", "error", err)
		return bus.RejectDrop
	}

	if c.dedup.SeenOrRecord(event.ID, string(event.Status)) {
		return bus.Ack
	}

	frame := wire.WSFrame{NetworkStatus: wire.NetworkOK, Notification: &event}
	c.dispatch(event, frame)
	return bus.Ack
}
