package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/and161185/warranty-keeper/internal/errs"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	var b errorBody
	b.Error.Code = code
	b.Error.Message = msg
	writeJSON(w, status, b)
}

// mapDomainError converts a service error into status, code and client message.
func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, errs.ErrInvalidInput), errors.Is(err, errs.ErrInvalidStatus):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, errs.ErrInvalidProduct):
		return http.StatusBadRequest, "INVALID_PRODUCT", "unknown product"
	case errors.Is(err, errs.ErrInvalidOrder):
		return http.StatusBadRequest, "INVALID_ORDER", "order not found for this account"
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "not the owner of this registration"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, errs.ErrDuplicateRegistration):
		return http.StatusConflict, "DUPLICATE_REGISTRATION", "product serial number already registered"
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, "CONFLICT", "already exists"
	case errors.Is(err, errs.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE", "only pending registrations can be edited"
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "too many attempts"
	case errors.Is(err, errs.ErrValidationUnavailable), errors.Is(err, errs.ErrConnectionLost):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, code, msg := mapDomainError(err)
	writeError(w, status, code, msg)
}
