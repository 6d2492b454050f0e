package http

import (
	"encoding/json"
	"net/http"
)

// Error codes of responses rendered by this package.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeTooManyRequests  = "TOO_MANY_REQUESTS"
	CodeRateLimitBanned  = "RATE_LIMIT_BANNED"
	CodeInvalidAPIKey    = "INVALID_API_KEY"
	CodeConfigError      = "CONFIG_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeAuthFailure      = "AUTH_FAILURE"
	CodeTRPCFailure      = "TRPC_FAILURE"
	CodeTimeout          = "TIMEOUT"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeParseError       = "PARSE_ERROR"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {error, code} envelope.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}
