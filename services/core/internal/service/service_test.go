package service

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tom-notifier/core/internal/auth"
	"github.com/tom-notifier/core/internal/models"
	"github.com/tom-notifier/core/internal/repository"
	"github.com/tom-notifier/shared/apperr"
)

type fakeRepo struct {
	created       *models.Notification
	createErr     error
	byID          *models.Notification
	byIDErr       error
	invalidateErr error
	claimed       []models.Notification
	claimErr      error
	setSeenErr    error
	deleteErr     error
}

func (f *fakeRepo) Create(ctx context.Context, n *models.Notification) error {
	f.created = n
	return f.createErr
}

func (f *fakeRepo) GetByID(ctx context.Context, id models.NotificationID) (*models.Notification, error) {
	return f.byID, f.byIDErr
}

func (f *fakeRepo) SetInvalidateAt(ctx context.Context, id models.NotificationID, at time.Time) error {
	return f.invalidateErr
}

func (f *fakeRepo) ClaimUndelivered(ctx context.Context, principal uuid.UUID) ([]models.Notification, error) {
	return f.claimed, f.claimErr
}

func (f *fakeRepo) ListDelivered(ctx context.Context, principal uuid.UUID, seen *bool, limit, offset int) ([]repository.Delivered, int, error) {
	return nil, 0, nil
}

func (f *fakeRepo) GetDelivered(ctx context.Context, principal uuid.UUID, id models.NotificationID) (*repository.Delivered, error) {
	return nil, apperr.ErrNotFound
}

func (f *fakeRepo) SetSeen(ctx context.Context, principal uuid.UUID, id models.NotificationID, seen bool) error {
	return f.setSeenErr
}

func (f *fakeRepo) Delete(ctx context.Context, principal uuid.UUID, id models.NotificationID) error {
	return f.deleteErr
}

type fakePublisher struct {
	newCalls       int
	updatedCalls   int
	deletedCalls   int
	lastUpdateSeen bool
}

func (f *fakePublisher) PublishNew(ctx context.Context, n *models.Notification) { f.newCalls++ }
func (f *fakePublisher) PublishUpdated(ctx context.Context, id models.NotificationID, seen bool) {
	f.updatedCalls++
	f.lastUpdateSeen = seen
}
func (f *fakePublisher) PublishDeleted(ctx context.Context, id models.NotificationID) { f.deletedCalls++ }

func TestCreateRejectsMissingProducerNotificationID(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	_, err := svc.Create(context.Background(), auth.Principal{UserID: uuid.New()}, CreateRequest{
		ContentType: "text/plain",
		Content:     base64.StdEncoding.EncodeToString([]byte("hi")),
	})

	var valErr *apperr.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "producer_notification_id", valErr.Field)
}

func TestCreateRejectsMissingContentType(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	_, err := svc.Create(context.Background(), auth.Principal{UserID: uuid.New()}, CreateRequest{
		ProducerNotificationID: 1,
		Content:                base64.StdEncoding.EncodeToString([]byte("hi")),
	})

	var valErr *apperr.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "content_type", valErr.Field)
}

func TestCreateRejectsMissingContent(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	_, err := svc.Create(context.Background(), auth.Principal{UserID: uuid.New()}, CreateRequest{
		ProducerNotificationID: 1,
		ContentType:            "text/plain",
	})

	var valErr *apperr.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "content", valErr.Field)
}

func TestCreateRejectsBadBase64(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	_, err := svc.Create(context.Background(), auth.Principal{UserID: uuid.New()}, CreateRequest{
		ProducerNotificationID: 1,
		ContentType:            "text/plain",
		Content:                "not-valid-base64!!",
	})

	assert.ErrorIs(t, err, apperr.ErrBadRequest)
	assert.Equal(t, 0, pub.newCalls)
}

func TestCreateRejectsOversizeContent(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4)

	content := base64.StdEncoding.EncodeToString([]byte("too long for the limit"))
	_, err := svc.Create(context.Background(), auth.Principal{UserID: uuid.New()}, CreateRequest{
		ProducerNotificationID: 1,
		ContentType:            "text/plain",
		Content:                content,
	})

	assert.ErrorIs(t, err, apperr.ErrPayloadTooLarge)
}

func TestCreateRejectsPastInvalidateAt(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	past := time.Now().Add(-time.Hour)
	_, err := svc.Create(context.Background(), auth.Principal{UserID: uuid.New()}, CreateRequest{
		ProducerNotificationID: 1,
		ContentType:            "text/plain",
		Content:                base64.StdEncoding.EncodeToString([]byte("hi")),
		InvalidateAt:           &past,
	})

	var validationErr *apperr.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "invalidate_at", validationErr.Field)
}

func TestCreatePublishesNewOnSuccess(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	principal := auth.Principal{UserID: uuid.New()}
	id, err := svc.Create(context.Background(), principal, CreateRequest{
		ProducerNotificationID: 7,
		ContentType:            "text/plain",
		Content:                base64.StdEncoding.EncodeToString([]byte("hi")),
	})

	require.NoError(t, err)
	assert.Len(t, id, 24)
	assert.Equal(t, 1, pub.newCalls)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.StatusUndelivered, repo.created.Status)
	assert.Equal(t, principal.UserID, repo.created.CreatedBy)
}

func TestCreatePropagatesConflict(t *testing.T) {
	repo := &fakeRepo{createErr: apperr.ErrConflict}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	_, err := svc.Create(context.Background(), auth.Principal{UserID: uuid.New()}, CreateRequest{
		ProducerNotificationID: 7,
		ContentType:            "text/plain",
		Content:                base64.StdEncoding.EncodeToString([]byte("hi")),
	})

	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 0, pub.newCalls)
}

func TestInvalidateAtRequiresCreator(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{byID: &models.Notification{CreatedBy: owner}}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	id := models.NewNotificationID()
	err := svc.InvalidateAt(context.Background(), auth.Principal{UserID: uuid.New()}, id.String(), time.Now().Add(time.Hour))

	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestInvalidateAtRejectsPastTimestamp(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{byID: &models.Notification{CreatedBy: owner}}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	id := models.NewNotificationID()
	err := svc.InvalidateAt(context.Background(), auth.Principal{UserID: owner}, id.String(), time.Now().Add(-time.Minute))

	var validationErr *apperr.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestSetSeenPublishesUpdated(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	id := models.NewNotificationID()
	err := svc.SetSeen(context.Background(), auth.Principal{UserID: uuid.New()}, id.String(), true)

	require.NoError(t, err)
	assert.Equal(t, 1, pub.updatedCalls)
	assert.True(t, pub.lastUpdateSeen)
}

func TestSetSeenNotFoundDoesNotPublish(t *testing.T) {
	repo := &fakeRepo{setSeenErr: apperr.ErrNotFound}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	id := models.NewNotificationID()
	err := svc.SetSeen(context.Background(), auth.Principal{UserID: uuid.New()}, id.String(), true)

	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 0, pub.updatedCalls)
}

func TestDeletePublishesDeleted(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	id := models.NewNotificationID()
	err := svc.Delete(context.Background(), auth.Principal{UserID: uuid.New()}, id.String())

	require.NoError(t, err)
	assert.Equal(t, 1, pub.deletedCalls)
}

func TestFetchUndeliveredMapsClaimedRows(t *testing.T) {
	n := models.Notification{ID: models.NewNotificationID(), ContentType: "text/plain", Status: models.StatusDelivered}
	repo := &fakeRepo{claimed: []models.Notification{n}}
	pub := &fakePublisher{}
	svc := New(repo, pub, 4096)

	items, err := svc.FetchUndelivered(context.Background(), auth.Principal{UserID: uuid.New()})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, n.ID.String(), items[0].ID)
}
