// Package event publishes notification state changes to the bus and
// consumes delivery confirmations from it: plain JSON payloads over
// AMQP, riding the shared reconnecting bus.Client instead of owning its
// own connection.
package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tom-notifier/core/internal/models"
	"github.com/tom-notifier/shared/bus"
	"github.com/tom-notifier/shared/wire"
)

// Publisher emits NotificationEvent messages to the notifications
// exchange (spec §4.1, §4.2 and §6's bus topology).
type Publisher struct {
	client *bus.Client
}

func NewPublisher(client *bus.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishNew announces a freshly created notification. Publish failure
// is logged, not retried or surfaced to the caller: the store already
// committed and clients retain long-poll recourse (spec §4.1, §7).
func (p *Publisher) PublishNew(ctx context.Context, n *models.Notification) {
	event := wire.NotificationEvent{
		ID:          n.ID.String(),
		Status:      wire.StatusNew,
		Timestamp:   n.CreatedAt,
		CreatedBy:   &n.CreatedBy,
		UserIDs:     []uuid.UUID(n.UserIDs),
		ContentType: &n.ContentType,
		Content:     n.Content,
	}
	p.publish(ctx, wire.StatusNew, event)
}

// PublishUpdated announces a seen-state change (spec §4.1 SetSeen).
func (p *Publisher) PublishUpdated(ctx context.Context, id models.NotificationID, seen bool) {
	event := wire.NotificationEvent{
		ID:        id.String(),
		Status:    wire.StatusUpdated,
		Timestamp: time.Now(),
		Seen:      &seen,
	}
	p.publish(ctx, wire.StatusUpdated, event)
}

// PublishDeleted announces a deletion (spec §4.1 Delete). DELETED
// carries no content, matching the suppression invariant in spec §3.
func (p *Publisher) PublishDeleted(ctx context.Context, id models.NotificationID) {
	event := wire.NotificationEvent{
		ID:        id.String(),
		Status:    wire.StatusDeleted,
		Timestamp: time.Now(),
	}
	p.publish(ctx, wire.StatusDeleted, event)
}

func (p *Publisher) publish(ctx context.Context, routingKey wire.NotificationStatus, event wire.NotificationEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("event: marshal failed", "notification_id", event.ID, "error", err)
		return
	}
	if err := p.client.Publish(ctx, wire.NotificationsExchange, string(routingKey), body); err != nil {
		slog.Warn("event: publish failed, store remains authoritative", "notification_id", event.ID, "status", routingKey, "error", err)
	}
}
