package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/logging"
	"github.com/voltigdev/voltig-turbo/internal/port/inbound"
)

// Mount points of the API surface.
const (
	AuthPrefix  = "/api/auth/"
	TRPCPrefix  = "/api/trpc/"
	AdminPrefix = "/api/admin/"
)

// FetchHandler answers a standard request with a buffered response. The
// auth provider and the tRPC handler implement it. A returned error is an
// internal failure; client errors are rendered into the response.
type FetchHandler interface {
	Handle(ctx context.Context, r *http.Request) (*inbound.Response, error)
}

// RouterOptions configures NewRouter. Nil handlers leave their routes
// answering 404.
type RouterOptions struct {
	Auth    FetchHandler
	TRPC    FetchHandler
	Admin   http.Handler
	Metrics http.Handler
	Health  *HealthChecker

	// APISecretKey guards /api/admin/* and /metrics outside development.
	APISecretKey string
	Development  bool
}

// Router dispatches requests to the controllers. Unknown paths get a JSON
// 404 and known paths called with the wrong method a JSON 405.
type Router struct {
	auth        FetchHandler
	trpc        FetchHandler
	admin       http.Handler
	metrics     http.Handler
	health      *HealthChecker
	development bool
	now         func() time.Time
}

// NewRouter creates a Router. The admin and metrics handlers are wrapped
// with the API key check.
func NewRouter(opts RouterOptions) *Router {
	guard := APIKeyMiddleware(opts.APISecretKey, opts.Development)
	rt := &Router{
		auth:        opts.Auth,
		trpc:        opts.TRPC,
		health:      opts.Health,
		development: opts.Development,
		now:         time.Now,
	}
	if opts.Admin != nil {
		rt.admin = guard(opts.Admin)
	}
	if opts.Metrics != nil {
		rt.metrics = guard(opts.Metrics)
	}
	return rt
}

// PublicEndpoints lists the API routes advertised by GET /.
func PublicEndpoints() []string {
	return []string{AuthPrefix + "*", TRPCPrefix + "*"}
}

// Endpoints names every mounted route for the startup log.
func Endpoints() map[string]string {
	return map[string]string{
		"auth":    AuthPrefix + "*",
		"trpc":    TRPCPrefix + "*",
		"admin":   AdminPrefix + "*",
		"health":  "/health",
		"metrics": "/metrics",
	}
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/":
		if allowMethods(w, r, http.MethodGet) {
			rt.serveRoot(w)
		}
	case path == "/health" && rt.health != nil:
		if allowMethods(w, r, http.MethodGet) {
			rt.health.Handler().ServeHTTP(w, r)
		}
	case path == "/metrics" && rt.metrics != nil:
		if allowMethods(w, r, http.MethodGet) {
			rt.metrics.ServeHTTP(w, r)
		}
	case strings.HasPrefix(path, AuthPrefix) && rt.auth != nil:
		if allowMethods(w, r, http.MethodGet, http.MethodPost) {
			rt.serveAuth(w, r)
		}
	case strings.HasPrefix(path, TRPCPrefix) && rt.trpc != nil:
		if allowMethods(w, r, http.MethodGet, http.MethodPost, http.MethodOptions) {
			rt.serveTRPC(w, r)
		}
	case strings.HasPrefix(path, AdminPrefix) && rt.admin != nil:
		rt.admin.ServeHTTP(w, r)
	default:
		writeError(w, http.StatusNotFound, "Route not found", CodeNotFound)
	}
}

func (rt *Router) serveRoot(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Voltig API",
		"status":    "running",
		"timestamp": rt.now().UTC().Format(time.RFC3339Nano),
		"endpoints": PublicEndpoints(),
	})
}

// serveAuth forwards the request to the auth provider through the
// native/standard request conversion.
func (rt *Router) serveAuth(w http.ResponseWriter, r *http.Request) {
	logger := logging.Auth(LoggerFromContext(r.Context()), "")

	req, ok := convertRequest(w, r, "Invalid JSON body", CodeInvalidJSON)
	if !ok {
		return
	}
	resp, err := rt.auth.Handle(req.Context(), req)
	if err != nil {
		logger.Error("auth handler failed", "url", r.URL.String(), logging.ErrorAttrs(err, rt.development))
		writeError(w, http.StatusInternalServerError, "Internal authentication error", CodeAuthFailure)
		return
	}
	ApplyStandardResponse(resp, w)
}

// serveTRPC answers OPTIONS with an empty 204 and forwards everything else
// to the tRPC handler.
func (rt *Router) serveTRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	req, ok := convertRequest(w, r, "Unable to parse input as JSON", CodeParseError)
	if !ok {
		return
	}
	resp, err := rt.trpc.Handle(req.Context(), req)
	if err != nil {
		logging.TRPC(LoggerFromContext(r.Context()), strings.TrimPrefix(r.URL.Path, TRPCPrefix), "").
			Error("trpc handler failed", logging.ErrorAttrs(err, rt.development))
		writeError(w, http.StatusInternalServerError, "Internal tRPC error", CodeTRPCFailure)
		return
	}
	ApplyStandardResponse(resp, w)
}

// convertRequest runs r through NativeRequestFrom and ToStandardRequest.
// On failure it writes the error response and returns false: 413 for an
// oversized body, 400 with badCode for a body that is not JSON.
func convertRequest(w http.ResponseWriter, r *http.Request, badMessage, badCode string) (*http.Request, bool) {
	native, err := NativeRequestFrom(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request entity too large", CodePayloadTooLarge)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, badMessage, badCode)
		return nil, false
	}
	req, err := ToStandardRequest(r.Context(), native)
	if err != nil {
		writeError(w, http.StatusBadRequest, badMessage, badCode)
		return nil, false
	}
	req.RemoteAddr = r.RemoteAddr
	return req, true
}

// allowMethods writes a 405 and returns false when r.Method is not listed.
func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed", CodeMethodNotAllowed)
	return false
}
