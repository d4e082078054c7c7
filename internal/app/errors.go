package app

import (
	"errors"
	"fmt"
	"net/http"

	"prioritylist/api/internal/auth"
	"prioritylist/api/internal/authpw"
	"prioritylist/api/internal/export"
	"prioritylist/api/internal/linkpreview"
	"prioritylist/api/internal/store"
	"prioritylist/api/internal/tree"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var errUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var validation *tree.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Error(), map[string]string{"field": validation.Field}
	case errors.Is(err, tree.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, tree.ErrInvalidReference):
		return http.StatusConflict, "INVALID_REFERENCE", "Stored child order references a missing node", nil
	case errors.Is(err, tree.ErrNoCaller),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil

	case errors.Is(err, authpw.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil

	case errors.Is(err, linkpreview.ErrInvalidURL):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), map[string]string{"field": "url"}
	case errors.Is(err, linkpreview.ErrBlockedHost), errors.Is(err, linkpreview.ErrRedirectBlocked):
		return http.StatusUnprocessableEntity, "PREVIEW_BLOCKED", err.Error(), nil
	case errors.Is(err, linkpreview.ErrNoTitle):
		return http.StatusUnprocessableEntity, "PREVIEW_UNAVAILABLE", err.Error(), nil

	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), map[string]string{"field": "format"}
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusNotImplemented, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil
	case errors.Is(err, export.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
