// Package models holds Core's durable domain types (spec §3).
package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tom-notifier/shared/utils"
)

// Status is a Notification's position in the delivery state machine.
// Transitions are Undelivered -> Delivered -> Deleted; no transition
// ever moves backward (spec §3 invariants, §8.4).
type Status string

const (
	StatusUndelivered Status = "undelivered"
	StatusDelivered   Status = "delivered"
	StatusDeleted     Status = "deleted"
)

// Value/Scan let NotificationID be stored as a Postgres bytea column.

func (id NotificationID) Value() (driver.Value, error) {
	return id[:], nil
}

func (id *NotificationID) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("NotificationID: Scan failed, expected []byte but got %T", value)
	}
	if len(b) != len(id) {
		return fmt.Errorf("NotificationID: Scan failed, want %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return nil
}

// Notification is the authoritative, durable record (spec §3). Its
// root row carries no per-recipient delivery state (delivered_at, seen);
// that lives in Delivery rows for broadcast (user_ids empty) and
// targeted notifications alike. The root row's Status is shared by all
// recipients: the first delivery to any recipient, broadcasts included,
// advances it from Undelivered to Delivered.
type Notification struct {
	ID                     NotificationID `db:"id"`
	ProducerNotificationID int64          `db:"producer_notification_id"`
	CreatedBy              uuid.UUID      `db:"created_by"`
	CreatedAt              time.Time      `db:"created_at"`
	InvalidateAt           *time.Time     `db:"invalidate_at"`
	UserIDs                utils.UUIDSet  `db:"user_ids"`
	ContentType            string         `db:"content_type"`
	Content                []byte         `db:"content"`
	Status                 Status         `db:"status"`
}

// IsRecipient reports whether principal is addressed by this
// notification: broadcast (empty user_ids) addresses everyone.
func (n Notification) IsRecipient(principal uuid.UUID) bool {
	return n.UserIDs.Broadcast() || n.UserIDs.Contains(principal)
}

// Expired reports whether InvalidateAt has passed as of now. Expired
// notifications are filtered out of all reads and never emitted (spec
// §3).
func (n Notification) Expired(now time.Time) bool {
	return n.InvalidateAt != nil && !n.InvalidateAt.After(now)
}

// Delivery is the per-(notification, principal) sidecar row spec §4.1
// and §9 require for exactly-once delivery of broadcast notifications,
// and which also carries per-recipient Seen/DeliveredAt state for
// targeted notifications.
type Delivery struct {
	NotificationID NotificationID `db:"notification_id"`
	UserID         uuid.UUID      `db:"user_id"`
	DeliveredAt    time.Time      `db:"delivered_at"`
	Seen           bool           `db:"seen"`
}
