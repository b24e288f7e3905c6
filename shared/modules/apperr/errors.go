// Package apperr defines the error taxonomy shared by the Core and
// WS-Delivery services and the HTTP status codes each kind maps to.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrBadRequest         = errors.New("bad request")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrRateLimited        = errors.New("rate limited")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrBusUnavailable     = errors.New("bus unavailable")
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrLagged             = errors.New("connection lagged")
)

// ValidationError is a field-level validation failure; Status maps it to
// a 422 response.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// APIError is the JSON shape written for any non-2xx Core response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Status maps err to the HTTP status and error code fixed by spec §6/§7.
// Unrecognized errors map to 500.
func Status(err error) (int, APIError) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, APIError{Code: "bad_request", Message: "malformed request body"}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, APIError{Code: "unauthorized", Message: "authentication required"}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, APIError{Code: "forbidden", Message: "not permitted to perform this action"}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, APIError{Code: "not_found", Message: "resource not found"}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, APIError{Code: "conflict", Message: "resource already exists"}
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, APIError{Code: "payload_too_large", Message: "content exceeds maximum size"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, APIError{Code: "rate_limited", Message: "too many requests, slow down"}
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusInternalServerError, APIError{Code: "storage_unavailable", Message: "storage temporarily unavailable, retry"}
	case errors.Is(err, ErrBusUnavailable):
		return http.StatusInternalServerError, APIError{Code: "bus_unavailable", Message: "event bus temporarily unavailable"}
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, APIError{Code: "validation_error", Message: validationErr.Error()}
	}

	return http.StatusInternalServerError, APIError{Code: "internal_error", Message: "an unexpected error occurred"}
}
