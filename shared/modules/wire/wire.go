// Package wire holds the message shapes that cross process boundaries:
// the bus events Core publishes and consumes, and the WebSocket frames
// WS-Delivery exchanges with clients. Both services import this package
// so neither can drift from the other's encoding.
package wire

import (
	"time"

	"github.com/google/uuid"
)

// Bus topology, fixed by spec §6.
const (
	NotificationsExchange = "notifications"
	ConfirmationsExchange = "confirmations"
	ConfirmationsQueue    = "confirmations"

	// NotificationsQueuePrefix names each WS-Delivery instance's own
	// exclusive, auto-delete queue bound to every NotificationsExchange
	// routing key. Every instance gets every event (spec §4.5: "two
	// WS-Delivery instances may both deliver the same event"), which
	// rules out a single shared competing-consumers queue.
	NotificationsQueuePrefix = "ws-delivery-notifications-"
)

// NotificationStatus is the routing key and payload discriminator for a
// NotificationEvent.
type NotificationStatus string

const (
	StatusNew     NotificationStatus = "NEW"
	StatusUpdated NotificationStatus = "UPDATED"
	StatusDeleted NotificationStatus = "DELETED"
)

// NotificationEvent is published by Core to the notifications exchange
// and consumed by WS-Delivery. NEW carries the full payload; UPDATED
// carries only Seen; DELETED carries neither.
type NotificationEvent struct {
	ID          string             `json:"id"`
	Status      NotificationStatus `json:"status"`
	Timestamp   time.Time          `json:"timestamp"`
	CreatedBy   *uuid.UUID         `json:"created_by,omitempty"`
	UserIDs     []uuid.UUID        `json:"user_ids,omitempty"`
	Seen        *bool              `json:"seen,omitempty"`
	ContentType *string            `json:"content_type,omitempty"`
	Content     []byte             `json:"content,omitempty"`
}

// Confirmation is published by WS-Delivery to the confirmations exchange
// when a user acks a NEW frame, and consumed by Core.
type Confirmation struct {
	NotificationID string    `json:"notification_id"`
	UserID         uuid.UUID `json:"user_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// NetworkStatus reflects the bus wrapper's lifecycle on the WS-Delivery
// side, surfaced to clients so they know whether to fall back to Core's
// long-poll surface.
type NetworkStatus string

const (
	NetworkOK    NetworkStatus = "OK"
	NetworkError NetworkStatus = "ERROR"
)

// WSFrame is the server->client WebSocket message. A frame with
// Notification == nil and NetworkStatus == ERROR signals a bus outage;
// nil/OK signals recovery. Ping frames carry neither a notification nor
// a network status change; they exist purely to keep the connection's
// ack-required send loop exercised when nothing else is queued (spec
// §4.3).
type WSFrame struct {
	MessageID        uuid.UUID          `json:"message_id"`
	MessageTimestamp time.Time          `json:"message_timestamp"`
	NetworkStatus    NetworkStatus      `json:"network_status,omitempty"`
	Notification     *NotificationEvent `json:"notification,omitempty"`
	Ping             bool               `json:"ping,omitempty"`
}

// WSAck is the client->server response acknowledging a WSFrame by id.
type WSAck struct {
	MessageID uuid.UUID `json:"message_id"`
}
