// Package auth authenticates the ticket-issuance endpoint against the
// same bearer JWTs Core accepts, trimmed down from core/internal/auth's
// verification logic — WS-Delivery never parses a JWT off the
// WebSocket upgrade itself (spec §4.7), only off this one HTTP
// sub-endpoint.
package auth

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tom-notifier/shared/apperr"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

type Principal struct {
	UserID uuid.UUID
}

const principalLocalsKey = "principal"

type Verifier struct {
	secret     string
	algorithms []string
}

func NewVerifier(secret string, algorithms []string) *Verifier {
	return &Verifier{secret: secret, algorithms: algorithms}
}

// Middleware extracts and verifies the bearer token used to authorize
// ticket issuance, storing the resulting Principal in request locals.
func (v *Verifier) Middleware(c fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if header == "" || !ok {
		return writeErr(c, apperr.ErrUnauthorized)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		alg, ok := t.Method.(*jwt.SigningMethodHMAC)
		if !ok || !slices.Contains(v.algorithms, alg.Name) {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.secret), nil
	})
	if err != nil {
		return writeErr(c, apperr.ErrUnauthorized)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return writeErr(c, apperr.ErrUnauthorized)
	}

	c.Locals(principalLocalsKey, Principal{UserID: userID})
	return c.Next()
}

func FromContext(c fiber.Ctx) Principal {
	return c.Locals(principalLocalsKey).(Principal)
}

func writeErr(c fiber.Ctx, err error) error {
	status, apiErr := apperr.Status(err)
	return c.Status(status).JSON(apiErr)
}
