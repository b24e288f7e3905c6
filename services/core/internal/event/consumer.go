package event

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tom-notifier/core/internal/models"
	"github.com/tom-notifier/core/internal/repository"
	"github.com/tom-notifier/shared/bus"
	"github.com/tom-notifier/shared/wire"
)

// ConfirmationConsumer ingests WS-Delivery's delivery confirmations
// (spec §4.1 ConfirmationIngest). Malformed bodies are dropped rather
// than requeued, since requeuing a message this service itself cannot
// parse would loop forever; storage failures requeue so the confirmation
// is retried once the store recovers (spec §7).
type ConfirmationConsumer struct {
	repo *repository.Repository
}

func NewConfirmationConsumer(repo *repository.Repository) *ConfirmationConsumer {
	return &ConfirmationConsumer{repo: repo}
}

// Handle is a bus.Handler for the confirmations queue.
func (c *ConfirmationConsumer) Handle(ctx context.Context, body []byte) bus.Action {
	var confirmation wire.Confirmation
	if err := json.Unmarshal(body, &confirmation); err != nil {
		slog.Error("confirmation consumer: malformed message, dropping", "error", err)
		return bus.RejectDrop
	}

	id, err := models.ParseNotificationID(confirmation.NotificationID)
	if err != nil {
		slog.Error("confirmation consumer: malformed notification id, dropping", "error", err)
		return bus.RejectDrop
	}

	if err := c.repo.UpsertConfirmation(ctx, id, confirmation.UserID, confirmation.Timestamp); err != nil {
		slog.Warn("confirmation consumer: storage unavailable, requeueing", "notification_id", confirmation.NotificationID, "error", err)
		return bus.RejectRequeue
	}

	return bus.Ack
}
