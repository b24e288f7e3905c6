package service

import (
	"time"

	"github.com/google/uuid"
)

// CreateRequest is the body of POST /api/v1/notifications/undelivered
// (spec §4.1 Create, §6). Content arrives base64-encoded; decoding
// happens in Create so a malformed payload maps to the 400 the HTTP
// table reserves for "bad base64" rather than the 422 used for other
// validation failures.
type CreateRequest struct {
	ProducerNotificationID int64       `json:"producer_notification_id"`
	UserIDs                []uuid.UUID `json:"user_ids"`
	ContentType            string      `json:"content_type"`
	Content                string      `json:"content"`
	InvalidateAt           *time.Time  `json:"invalidate_at,omitempty"`
}

// CreateResponse is the 200 body for Create.
type CreateResponse struct {
	ID string `json:"id"`
}

// InvalidateAtRequest is the body of PUT .../invalidate_at.
type InvalidateAtRequest struct {
	InvalidateAt time.Time `json:"invalidate_at"`
}

// NotificationDTO is the wire shape for a delivered notification
// returned by FetchUndelivered, FetchDelivered and GetDelivered.
type NotificationDTO struct {
	ID                     string      `json:"id"`
	ProducerNotificationID int64       `json:"producer_notification_id"`
	CreatedBy              uuid.UUID   `json:"created_by"`
	CreatedAt              time.Time   `json:"created_at"`
	InvalidateAt           *time.Time  `json:"invalidate_at,omitempty"`
	UserIDs                []uuid.UUID `json:"user_ids,omitempty"`
	ContentType            string      `json:"content_type"`
	Content                []byte      `json:"content,omitempty"`
	Status                 string      `json:"status"`
	Seen                   *bool       `json:"seen,omitempty"`
	DeliveredAt            *time.Time  `json:"delivered_at,omitempty"`
}

// Page is the pagination envelope FetchDelivered returns, a feature the
// distilled contract's "page_idx/page_size" parameters imply but do not
// spell out the response shape for.
type Page struct {
	Items      []NotificationDTO `json:"items"`
	PageIdx    int               `json:"page_idx"`
	PageSize   int               `json:"page_size"`
	TotalCount int               `json:"total_count"`
}

// SetSeenRequest is the body of PUT .../seen.
type SetSeenRequest struct {
	Seen bool `json:"seen"`
}
