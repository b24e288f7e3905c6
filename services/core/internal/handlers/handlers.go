// Package handlers wires Core's HTTP surface (spec §6): bind the
// request body, delegate to the service layer, map the returned error
// through this service's own auth middleware and error taxonomy.
package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/tom-notifier/core/internal/auth"
	"github.com/tom-notifier/core/internal/service"
	"github.com/tom-notifier/shared/apperr"
)

// notificationService is the subset of *service.Service this layer
// calls, narrowed so tests can substitute a fake without standing up a
// database or bus connection.
type notificationService interface {
	Create(ctx context.Context, principal auth.Principal, req service.CreateRequest) (string, error)
	FetchUndelivered(ctx context.Context, principal auth.Principal) ([]service.NotificationDTO, error)
	InvalidateAt(ctx context.Context, principal auth.Principal, idHex string, newAt time.Time) error
	FetchDelivered(ctx context.Context, principal auth.Principal, pageIdx, pageSize int, seen *bool) (service.Page, error)
	GetDelivered(ctx context.Context, principal auth.Principal, idHex string) (service.NotificationDTO, error)
	SetSeen(ctx context.Context, principal auth.Principal, idHex string, seen bool) error
	Delete(ctx context.Context, principal auth.Principal, idHex string) error
}

type Handlers struct {
	svc      notificationService
	verifier *auth.Verifier
}

func New(svc notificationService, verifier *auth.Verifier) *Handlers {
	return &Handlers{svc: svc, verifier: verifier}
}

// Register mounts every route in spec §6's table under /api/v1/notifications.
func (h *Handlers) Register(app *fiber.App) {
	group := app.Group("/api/v1/notifications", h.verifier.Middleware)

	group.Post("/undelivered", auth.RequireRole(auth.RoleProduceNotifications), h.create)
	group.Get("/undelivered", h.fetchUndelivered)
	group.Put("/undelivered/:id/invalidate_at", auth.RequireRole(auth.RoleProduceNotifications), h.invalidateAt)
	group.Get("/delivered", h.fetchDelivered)
	group.Get("/delivered/:id", h.getDelivered)
	group.Delete("/delivered/:id", h.delete)
	group.Put("/delivered/:id/seen", h.setSeen)
}

func (h *Handlers) create(c fiber.Ctx) error {
	var req service.CreateRequest
	if err := c.Bind().Body(&req); err != nil {
		return writeError(c, &apperr.ValidationError{Field: "body", Message: err.Error()})
	}

	id, err := h.svc.Create(c.Context(), auth.FromContext(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(service.CreateResponse{ID: id})
}

func (h *Handlers) fetchUndelivered(c fiber.Ctx) error {
	items, err := h.svc.FetchUndelivered(c.Context(), auth.FromContext(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(items)
}

func (h *Handlers) invalidateAt(c fiber.Ctx) error {
	var req service.InvalidateAtRequest
	if err := c.Bind().Body(&req); err != nil {
		return writeError(c, &apperr.ValidationError{Field: "body", Message: err.Error()})
	}

	err := h.svc.InvalidateAt(c.Context(), auth.FromContext(c), c.Params("id"), req.InvalidateAt)
	if err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) fetchDelivered(c fiber.Ctx) error {
	pageIdx, _ := strconv.Atoi(c.Query("page_idx", "0"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageIdx < 0 {
		pageIdx = 0
	}

	var seen *bool
	if raw := c.Query("seen"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return writeError(c, &apperr.ValidationError{Field: "seen", Message: "must be a boolean"})
		}
		seen = &v
	}

	page, err := h.svc.FetchDelivered(c.Context(), auth.FromContext(c), pageIdx, pageSize, seen)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(page)
}

func (h *Handlers) getDelivered(c fiber.Ctx) error {
	dto, err := h.svc.GetDelivered(c.Context(), auth.FromContext(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto)
}

func (h *Handlers) delete(c fiber.Ctx) error {
	if err := h.svc.Delete(c.Context(), auth.FromContext(c), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) setSeen(c fiber.Ctx) error {
	var req service.SetSeenRequest
	if err := c.Bind().Body(&req); err != nil {
		return writeError(c, &apperr.ValidationError{Field: "body", Message: err.Error()})
	}

	if err := h.svc.SetSeen(c.Context(), auth.FromContext(c), c.Params("id"), req.Seen); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func writeError(c fiber.Ctx, err error) error {
	status, apiErr := apperr.Status(err)
	return c.Status(status).JSON(apiErr)
}
