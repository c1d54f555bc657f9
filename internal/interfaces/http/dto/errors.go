package dto

import (
	"errors"
	"net/http"

	"github.com/pharmalytics/backend/internal/domain/shared"
)

// Domain error codes understood by the HTTP layer
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorCodeHTTPStatus maps domain error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeInternal:     http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes are internal errors.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorStatus resolves the status and client message of an error.
// Only domain errors expose their message; anything else is a 500 with a
// generic message so driver errors never reach the client.
func ErrorStatus(err error) (int, string) {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, shared.ErrInternal.Message
	}
	status := GetHTTPStatus(de.Code)
	if status == http.StatusInternalServerError {
		return status, shared.ErrInternal.Message
	}
	return status, de.Message
}
