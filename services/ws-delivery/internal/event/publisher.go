// Package event carries WS-Delivery's side of the bus: publishing
// confirmations and consuming notification events, mirroring
// core/internal/event's publisher/consumer shape.
package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tom-notifier/shared/bus"
	"github.com/tom-notifier/shared/wire"
)

type ConfirmationPublisher struct {
	client *bus.Client
}

func NewConfirmationPublisher(client *bus.Client) *ConfirmationPublisher {
	return &ConfirmationPublisher{client: client}
}

// PublishConfirmation announces that userID acked notificationID (spec
// §4.3 on_ack). Publish failure is logged, not surfaced to the caller.
// The acked frame has already left the connection's inflight set, so it
// is not retransmitted and a lost confirmation is not re-sent from this
// connection.
func (p *ConfirmationPublisher) PublishConfirmation(ctx context.Context, notificationID string, userID uuid.UUID) {
	body, err := json.Marshal(wire.Confirmation{
		NotificationID: notificationID,
		UserID:         userID,
		Timestamp:      time.Now(),
	})
	if err != nil {
		slog.Error("event: marshal confirmation failed", "error", err)
		return
	}
	if err := p.client.Publish(ctx, wire.ConfirmationsExchange, "", body); err != nil {
		slog.Warn("event: publish confirmation failed", "notification_id", notificationID, "user_id", userID, "error", err)
	}
}
