// Package auth authenticates HTTP requests against a bearer JWT and
// gates role-restricted operations: HMAC verification with an
// allow-listed signing algorithm, bearer header extraction, and a
// role check on top, wired into fiber v3.
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

// RoleProduceNotifications gates Create and InvalidateAt (spec §4.1).
const RoleProduceNotifications = "produce_notifications"

// Claims is the JWT payload issued by the external auth system this
// service trusts; Core never issues tokens itself (spec §1: JWT parsing
// is assumed to yield an authenticated principal with role claims).
type Claims struct {
	jwt.RegisteredClaims
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// Principal is the authenticated caller extracted from a request.
type Principal struct {
	UserID uuid.UUID
	Roles  []string
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

const principalLocalsKey = "principal"

// Verifier validates bearer tokens against a fixed secret and an
// allow-list of signing algorithms (spec §6: "configurable algorithm
// set").
type Verifier struct {
	secret     string
	algorithms []string
}

func NewVerifier(secret string, algorithms []string) *Verifier {
	return &Verifier{secret: secret, algorithms: algorithms}
}

// Middleware extracts and verifies the bearer token, storing the
// resulting Principal in request locals, or responds 401.
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

	c.Locals(principalLocalsKey, Principal{UserID: userID, Roles: claims.Roles})
	return c.Next()
}

func writeErr(c fiber.Ctx, err error) error {
	status, apiErr := apperr.Status(err)
	return c.Status(status).JSON(apiErr)
}

// FromContext retrieves the Principal stored by Middleware. Panics if
// called on a route not behind Middleware, matching the rest of this
// codebase's "handlers trust their middleware" convention.
func FromContext(c fiber.Ctx) Principal {
	return c.Locals(principalLocalsKey).(Principal)
}

// RequireRole returns middleware that rejects requests whose principal
// lacks role with 403.
func RequireRole(role string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if !FromContext(c).HasRole(role) {
			return writeErr(c, apperr.ErrForbidden)
		}
		return c.Next()
	}
}
