package app

import (
	"fmt"
	"net/http"
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

const (
	msgInvalidInputs = "Invalid inputs passed, please check your data."
	msgInvalidOrder  = "The new order must contain exactly the current items."
	msgAuthFailed    = "Authentication failed!"
	msgRateLimited   = "Too many requests, please try again later."
)

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

// noChildren reports an existing parent with an empty child sequence.
func noChildren(message string) *DomainError {
	return domainError(http.StatusNotFound, "NO_CHILDREN", message, nil)
}

func validationFailed(details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", msgInvalidInputs, details)
}

func invalidOrder() *DomainError {
	return domainError(http.StatusUnprocessableEntity, "INVALID_ORDER", msgInvalidOrder, nil)
}

func unauthorized(message string) *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func authFailed(message string) *DomainError {
	return domainError(http.StatusForbidden, "AUTH_FAILED", message, nil)
}

func duplicateEmail() *DomainError {
	return domainError(http.StatusUnprocessableEntity, "DUPLICATE_EMAIL", "User exists already, please login instead.", nil)
}

func serverError(message string) *DomainError {
	return domainError(http.StatusInternalServerError, "SERVER_ERROR", message, nil)
}

func rateLimited() *DomainError {
	return domainError(http.StatusTooManyRequests, "RATE_LIMITED", msgRateLimited, nil)
}
