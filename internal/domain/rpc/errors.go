// Package rpc implements the procedure layer: the per-call context, the
// public and protected procedure chains, the error envelope and the
// procedure registry.
package rpc

import (
	"context"
	"errors"
	"net/http"

	"github.com/voltigdev/voltig-turbo/internal/domain/validation"
)

// Code is a client-facing error code.
type Code string

// Error codes returned in the envelope's code field.
const (
	CodeParseError          Code = "PARSE_ERROR"
	CodeBadRequest          Code = "BAD_REQUEST"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeMethodNotSupported  Code = "METHOD_NOT_SUPPORTED"
	CodeTimeout             Code = "TIMEOUT"
	CodePayloadTooLarge     Code = "PAYLOAD_TOO_LARGE"
	CodeTooManyRequests     Code = "TOO_MANY_REQUESTS"
	CodeClientClosedRequest Code = "CLIENT_CLOSED_REQUEST"
	CodeInternalServerError Code = "INTERNAL_SERVER_ERROR"
)

var codeStatus = map[Code]int{
	CodeParseError:          http.StatusBadRequest,
	CodeBadRequest:          http.StatusBadRequest,
	CodeUnauthorized:        http.StatusUnauthorized,
	CodeForbidden:           http.StatusForbidden,
	CodeNotFound:            http.StatusNotFound,
	CodeMethodNotSupported:  http.StatusMethodNotAllowed,
	CodeTimeout:             http.StatusRequestTimeout,
	CodePayloadTooLarge:     http.StatusRequestEntityTooLarge,
	CodeTooManyRequests:     http.StatusTooManyRequests,
	CodeClientClosedRequest: 499,
	CodeInternalServerError: http.StatusInternalServerError,
}

// HTTPStatus returns the status code for c, or 500 for unknown codes.
func (c Code) HTTPStatus() int {
	if status, ok := codeStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Messages used for errors raised by the procedure layer itself.
const (
	MsgUnauthorized = "You must be logged in to access this resource"
	MsgInternal     = "Internal server error"
	MsgInvalidInput = "Invalid input"
)

// Error is a procedure failure safe to show to clients.
type Error struct {
	Code    Code
	Message string
	// Details is an optional structured payload, e.g. field errors.
	Details any
	cause   error
}

// NewError creates an Error with the given code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates an Error that keeps cause for logging and errors.Is.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the status code for the error's code.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// FromError converts any error returned by a procedure into an *Error.
// Validation failures become BAD_REQUEST with field details, deadlines
// become TIMEOUT, and anything unrecognised becomes a generic
// INTERNAL_SERVER_ERROR that does not leak the cause.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		e := WrapError(CodeBadRequest, MsgInvalidInput, err)
		if len(verr.Fields) > 0 {
			e.Details = verr.Fields
		}
		return e
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(CodeTimeout, "Request timed out", err)
	case errors.Is(err, context.Canceled):
		return WrapError(CodeClientClosedRequest, "Client closed request", err)
	}

	return WrapError(CodeInternalServerError, MsgInternal, err)
}
