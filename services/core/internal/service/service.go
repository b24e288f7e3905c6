// Package service implements Core's notification state machine (spec
// §4.1): request validation, the repository calls that carry out each
// operation, and the bus events each mutation announces.
package service

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	"github.com/tom-notifier/core/internal/auth"
	"github.com/tom-notifier/core/internal/models"
	"github.com/tom-notifier/core/internal/repository"
	"github.com/tom-notifier/shared/apperr"
)

// repo is the subset of *repository.Repository the state machine needs,
// narrowed so tests can substitute a fake.
type repo interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id models.NotificationID) (*models.Notification, error)
	SetInvalidateAt(ctx context.Context, id models.NotificationID, at time.Time) error
	ClaimUndelivered(ctx context.Context, principal uuid.UUID) ([]models.Notification, error)
	ListDelivered(ctx context.Context, principal uuid.UUID, seen *bool, limit, offset int) ([]repository.Delivered, int, error)
	GetDelivered(ctx context.Context, principal uuid.UUID, id models.NotificationID) (*repository.Delivered, error)
	SetSeen(ctx context.Context, principal uuid.UUID, id models.NotificationID, seen bool) error
	Delete(ctx context.Context, principal uuid.UUID, id models.NotificationID) error
}

// publisher is the subset of *event.Publisher the state machine needs.
type publisher interface {
	PublishNew(ctx context.Context, n *models.Notification)
	PublishUpdated(ctx context.Context, id models.NotificationID, seen bool)
	PublishDeleted(ctx context.Context, id models.NotificationID)
}

type Service struct {
	repo            repo
	publisher       publisher
	maxContentBytes int
}

func New(repo repo, publisher publisher, maxContentBytes int) *Service {
	return &Service{repo: repo, publisher: publisher, maxContentBytes: maxContentBytes}
}

// Create validates and stores a new notification, then publishes a NEW
// bus event (spec §4.1 Create). Callers must already hold the
// produce_notifications role; that gate lives in the HTTP layer.
func (s *Service) Create(ctx context.Context, principal auth.Principal, req CreateRequest) (string, error) {
	if req.ProducerNotificationID == 0 {
		return "", &apperr.ValidationError{Field: "producer_notification_id", Message: "required"}
	}
	if req.ContentType == "" {
		return "", &apperr.ValidationError{Field: "content_type", Message: "required"}
	}
	if req.Content == "" {
		return "", &apperr.ValidationError{Field: "content", Message: "required"}
	}

	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return "", apperr.ErrBadRequest
	}
	if len(content) > s.maxContentBytes {
		return "", apperr.ErrPayloadTooLarge
	}

	now := time.Now()
	if req.InvalidateAt != nil && req.InvalidateAt.Before(now) {
		return "", &apperr.ValidationError{Field: "invalidate_at", Message: "must be at or after the current time"}
	}

	n := &models.Notification{
		ID:                     models.NewNotificationID(),
		ProducerNotificationID: req.ProducerNotificationID,
		CreatedBy:              principal.UserID,
		CreatedAt:              now,
		InvalidateAt:           req.InvalidateAt,
		UserIDs:                req.UserIDs,
		ContentType:            req.ContentType,
		Content:                content,
		Status:                 models.StatusUndelivered,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return "", err
	}

	s.publisher.PublishNew(ctx, n)
	return n.ID.String(), nil
}

// FetchUndelivered returns and atomically claims every notification
// addressed to principal that principal has not yet received (spec
// §4.1 FetchUndelivered).
func (s *Service) FetchUndelivered(ctx context.Context, principal auth.Principal) ([]NotificationDTO, error) {
	claimed, err := s.repo.ClaimUndelivered(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]NotificationDTO, 0, len(claimed))
	for _, n := range claimed {
		out = append(out, toDTO(n))
	}
	return out, nil
}

// InvalidateAt updates a notification's expiry. Only its creator may
// call this, and the new expiry cannot be in the past (spec §4.1).
func (s *Service) InvalidateAt(ctx context.Context, principal auth.Principal, idHex string, newAt time.Time) error {
	id, err := models.ParseNotificationID(idHex)
	if err != nil {
		return apperr.ErrNotFound
	}

	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.CreatedBy != principal.UserID {
		return apperr.ErrForbidden
	}
	if !newAt.After(time.Now()) {
		return &apperr.ValidationError{Field: "invalidate_at", Message: "must be in the future"}
	}

	return s.repo.SetInvalidateAt(ctx, id, newAt)
}

// FetchDelivered pages through principal's delivered notifications
// (spec §4.1 FetchDelivered).
func (s *Service) FetchDelivered(ctx context.Context, principal auth.Principal, pageIdx, pageSize int, seen *bool) (Page, error) {
	rows, total, err := s.repo.ListDelivered(ctx, principal.UserID, seen, pageSize, pageIdx*pageSize)
	if err != nil {
		return Page{}, err
	}
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, toDTO(row.Notification).withDelivery(row.Seen, row.DeliveredAt))
	}
	return Page{Items: items, PageIdx: pageIdx, PageSize: pageSize, TotalCount: total}, nil
}

// GetDelivered returns a single delivered notification (spec §4.1).
func (s *Service) GetDelivered(ctx context.Context, principal auth.Principal, idHex string) (NotificationDTO, error) {
	id, err := models.ParseNotificationID(idHex)
	if err != nil {
		return NotificationDTO{}, apperr.ErrNotFound
	}
	row, err := s.repo.GetDelivered(ctx, principal.UserID, id)
	if err != nil {
		return NotificationDTO{}, err
	}
	return toDTO(row.Notification).withDelivery(row.Seen, row.DeliveredAt), nil
}

// SetSeen toggles a delivery's seen flag and publishes an UPDATED event
// (spec §4.1 SetSeen).
func (s *Service) SetSeen(ctx context.Context, principal auth.Principal, idHex string, seen bool) error {
	id, err := models.ParseNotificationID(idHex)
	if err != nil {
		return apperr.ErrNotFound
	}
	if err := s.repo.SetSeen(ctx, principal.UserID, id, seen); err != nil {
		return err
	}
	s.publisher.PublishUpdated(ctx, id, seen)
	return nil
}

// Delete marks a notification Deleted and publishes a DELETED event
// (spec §4.1 Delete).
func (s *Service) Delete(ctx context.Context, principal auth.Principal, idHex string) error {
	id, err := models.ParseNotificationID(idHex)
	if err != nil {
		return apperr.ErrNotFound
	}
	if err := s.repo.Delete(ctx, principal.UserID, id); err != nil {
		return err
	}
	s.publisher.PublishDeleted(ctx, id)
	return nil
}

func toDTO(n models.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:                     n.ID.String(),
		ProducerNotificationID: n.ProducerNotificationID,
		CreatedBy:              n.CreatedBy,
		CreatedAt:              n.CreatedAt,
		InvalidateAt:           n.InvalidateAt,
		UserIDs:                []uuid.UUID(n.UserIDs),
		ContentType:            n.ContentType,
		Content:                n.Content,
		Status:                 string(n.Status),
	}
	return dto
}

func (d NotificationDTO) withDelivery(seen bool, deliveredAt time.Time) NotificationDTO {
	d.Seen = &seen
	d.DeliveredAt = &deliveredAt
	return d
}
