// Package handlers wires WS-Delivery's HTTP surface: ticket issuance
// (spec §4.7) and the WebSocket upgrade endpoint, grounded on
// core/internal/handlers's Bind-then-call shape and extended with
// gofiber/contrib/websocket for the upgrade itself.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/tom-notifier/shared/apperr"
	"github.com/tom-notifier/shared/bus"
	"github.com/tom-notifier/shared/wire"
	wsauth "github.com/tom-notifier/ws-delivery/internal/auth"
	"github.com/tom-notifier/ws-delivery/internal/connection"
	"github.com/tom-notifier/ws-delivery/internal/registry"
)

// ticketIssuer is the subset of *ticket.Store this layer needs.
type ticketIssuer interface {
	Issue(ctx context.Context, userID, deviceID uuid.UUID) (uuid.UUID, error)
	Redeem(ctx context.Context, ticketID uuid.UUID) (userID, deviceID uuid.UUID, err error)
}

// limiter is the subset of *ratelimit.Limiter this layer needs.
type limiter interface {
	Allow(principal uuid.UUID) bool
}

// connRegistry is the subset of *registry.Registry this layer needs.
type connRegistry interface {
	Register(userID uuid.UUID, c registry.Conn)
	Unregister(userID uuid.UUID, connID uuid.UUID)
}

type Handlers struct {
	verifier    *wsauth.Verifier
	tickets     ticketIssuer
	limiter     limiter
	registry    connRegistry
	publisher   connection.ConfirmationPublisher
	busClient   *bus.Client
	connOptions connection.Options
}

func New(verifier *wsauth.Verifier, tickets ticketIssuer, lim limiter, reg connRegistry, publisher connection.ConfirmationPublisher, busClient *bus.Client, connOptions connection.Options) *Handlers {
	return &Handlers{
		verifier:    verifier,
		tickets:     tickets,
		limiter:     lim,
		registry:    reg,
		publisher:   publisher,
		busClient:   busClient,
		connOptions: connOptions,
	}
}

type ticketRequest struct {
	DeviceID uuid.UUID `json:"device_id" validate:"required"`
}

type ticketResponse struct {
	Ticket string `json:"ticket"`
}

func (h *Handlers) Register(app *fiber.App) {
	app.Post("/api/v1/ws/tickets", h.verifier.Middleware, h.issueTicket)

	app.Use("/api/v1/ws/connect", func(c fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/api/v1/ws/connect", websocket.New(h.handleUpgrade))
}

func (h *Handlers) issueTicket(c fiber.Ctx) error {
	principal := wsauth.FromContext(c)
	if !h.limiter.Allow(principal.UserID) {
		return writeError(c, apperr.ErrRateLimited)
	}

	var req ticketRequest
	if err := c.Bind().Body(&req); err != nil {
		return writeError(c, &apperr.ValidationError{Field: "device_id", Message: "required"})
	}

	ticketID, err := h.tickets.Issue(c.Context(), principal.UserID, req.DeviceID)
	if err != nil {
		return writeError(c, apperr.ErrStorageUnavailable)
	}

	return c.Status(fiber.StatusOK).JSON(ticketResponse{Ticket: ticketID.String()})
}

// handleUpgrade runs for the lifetime of one WebSocket connection.
// Ticket redemption happens here rather than in upgrade middleware
// because gofiber/contrib/websocket only exposes the query string
// inside the upgraded handler itself.
func (h *Handlers) handleUpgrade(c *websocket.Conn) {
	ctx := context.Background()

	ticketID, err := uuid.Parse(c.Query("ticket"))
	if err != nil {
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseProtocolError, "invalid ticket"))
		return
	}

	userID, deviceID, err := h.tickets.Redeem(ctx, ticketID)
	if err != nil {
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "ticket rejected"))
		return
	}

	writer := &socketWriter{conn: c}
	conn := connection.New(userID, deviceID, writer, h.publisher, h.registry, h.connOptions)
	h.registry.Register(userID, conn)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go conn.Run(runCtx)

	// Synchronous on-connect network-status frame reflecting current
	// bus lifecycle (SPEC_FULL supplemented feature, distinct from the
	// transition-only broadcaster in internal/netstatus).
	status := wire.NetworkOK
	if h.busClient.CurrentLifecycle() == bus.Down {
		status = wire.NetworkError
	}
	conn.TryEnqueue(wire.WSFrame{NetworkStatus: status})

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var ack wire.WSAck
		if err := json.Unmarshal(msg, &ack); err != nil {
			slog.Warn("ws: dropping malformed ack", "error", err)
			continue
		}
		conn.Ack(ack.MessageID)
	}
}

type socketWriter struct {
	conn *websocket.Conn
}

func (w *socketWriter) WriteFrame(frame wire.WSFrame) error {
	return w.conn.WriteJSON(frame)
}

func (w *socketWriter) Close(reason string) error {
	_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	return w.conn.Close()
}

func writeError(c fiber.Ctx, err error) error {
	status, apiErr := apperr.Status(err)
	return c.Status(status).JSON(apiErr)
}
