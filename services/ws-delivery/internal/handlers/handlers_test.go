package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tom-notifier/shared/wire"
	wsauth "github.com/tom-notifier/ws-delivery/internal/auth"
	"github.com/tom-notifier/ws-delivery/internal/connection"
	"github.com/tom-notifier/ws-delivery/internal/registry"
)

type fakeTickets struct {
	issueErr  error
	issuedFor uuid.UUID
}

func (f *fakeTickets) Issue(ctx context.Context, userID, deviceID uuid.UUID) (uuid.UUID, error) {
	f.issuedFor = userID
	if f.issueErr != nil {
		return uuid.Nil, f.issueErr
	}
	return uuid.New(), nil
}

func (f *fakeTickets) Redeem(ctx context.Context, ticketID uuid.UUID) (uuid.UUID, uuid.UUID, error) {
	return uuid.Nil, uuid.Nil, nil
}

type fakeLimiter struct {
	allow bool
}

func (f *fakeLimiter) Allow(uuid.UUID) bool { return f.allow }

type fakeConfirmationPublisher struct{}

func (fakeConfirmationPublisher) PublishConfirmation(ctx context.Context, notificationID string, userID uuid.UUID) {
}

const testSecret = "test-secret"

func bearerFor(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := wsauth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           userID.String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestApp(tickets *fakeTickets, lim *fakeLimiter) *fiber.App {
	verifier := wsauth.NewVerifier(testSecret, []string{"HS256"})
	reg := registry.New()
	h := New(verifier, tickets, lim, reg, fakeConfirmationPublisher{}, nil, connection.Options{})
	app := fiber.New()
	app.Post("/api/v1/ws/tickets", h.verifier.Middleware, h.issueTicket)
	return app
}

func doPost(t *testing.T, app *fiber.App, bearer string, body []byte) *http.Response {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/ws/tickets", bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestIssueTicketRejectsMissingAuth(t *testing.T) {
	app := newTestApp(&fakeTickets{}, &fakeLimiter{allow: true})
	body, _ := json.Marshal(struct {
		DeviceID uuid.UUID `json:"device_id"`
	}{DeviceID: uuid.New()})

	resp := doPost(t, app, "", body)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestIssueTicketRejectsRateLimited(t *testing.T) {
	app := newTestApp(&fakeTickets{}, &fakeLimiter{allow: false})
	body, _ := json.Marshal(struct {
		DeviceID uuid.UUID `json:"device_id"`
	}{DeviceID: uuid.New()})

	resp := doPost(t, app, bearerFor(t, uuid.New()), body)

	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestIssueTicketSucceeds(t *testing.T) {
	tickets := &fakeTickets{}
	app := newTestApp(tickets, &fakeLimiter{allow: true})
	principal := uuid.New()
	body, _ := json.Marshal(struct {
		DeviceID uuid.UUID `json:"device_id"`
	}{DeviceID: uuid.New()})

	resp := doPost(t, app, bearerFor(t, principal), body)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out ticketResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.Ticket)
	assert.Equal(t, principal, tickets.issuedFor)
}

var _ = wire.WSFrame{}
