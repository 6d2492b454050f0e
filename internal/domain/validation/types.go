// Package validation validates and sanitizes RPC inputs and flags
// suspicious request patterns.
package validation

import (
	"fmt"
	"sort"
	"strings"
)

// FieldErrors maps a JSON field name to a client-facing message.
// It is returned to clients as the error envelope's details.
type FieldErrors map[string]string

// ValidationError represents rejected input.
// The Message field contains a safe message for the client (no internal details).
type ValidationError struct {
	// Message is a safe, client-facing error message.
	Message string

	// Fields identifies the offending fields. May be empty.
	Fields FieldErrors
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation error: " + e.Message
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return fmt.Sprintf("validation error: %s (%s)", e.Message, strings.Join(parts, "; "))
}

// NewValidationError creates a new ValidationError with the given message and fields.
func NewValidationError(message string, fields FieldErrors) *ValidationError {
	return &ValidationError{
		Message: message,
		Fields:  fields,
	}
}
