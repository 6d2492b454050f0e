package service

import (
	"fmt"
	"net/http"
)

// AuthError is a client-facing auth failure rendered as
// {"error": Message, "code": Code} with Status.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Auth error values returned by the auth endpoints.
var (
	ErrInvalidCredentials = &AuthError{http.StatusUnauthorized, "INVALID_EMAIL_OR_PASSWORD", "Invalid email or password"}
	ErrEmailNotVerified   = &AuthError{http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Email not verified"}
	ErrUserExists         = &AuthError{http.StatusUnprocessableEntity, "USER_ALREADY_EXISTS", "User already exists"}
	ErrInvalidToken       = &AuthError{http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token"}
	ErrTokenExpired       = &AuthError{http.StatusUnauthorized, "TOKEN_EXPIRED", "Token expired"}
	ErrInvalidOrigin      = &AuthError{http.StatusForbidden, "INVALID_ORIGIN", "Invalid origin"}
	ErrAuthNotFound       = &AuthError{http.StatusNotFound, "NOT_FOUND", "Not found"}
	ErrAuthMethod         = &AuthError{http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed"}
)

// badRequest builds a 400 AuthError with a custom message.
func badRequest(code, message string) *AuthError {
	return &AuthError{Status: http.StatusBadRequest, Code: code, Message: message}
}
