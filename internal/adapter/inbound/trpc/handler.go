// Package trpc serves the RPC router over the tRPC HTTP wire format.
//
// Queries are sent as GET /api/trpc/{path}?input=<json> and mutations as
// POST /api/trpc/{path} with a JSON body. Successful calls answer
// {"result":{"data":...}}; failures answer {"error","code","details"?}.
//
// With ?batch=1 the path is a comma-separated list of procedures and the
// input is an object keyed by call index ({"0":...,"1":...}). The answer is
// a JSON array in call order with status 200 when every call succeeded, the
// shared status when every call failed the same way, and 207 otherwise.
package trpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/voltigdev/voltig-turbo/internal/domain/rpc"
	"github.com/voltigdev/voltig-turbo/internal/logging"
	"github.com/voltigdev/voltig-turbo/internal/port/inbound"
)

// DefaultPrefix is the mount point of the RPC endpoint.
const DefaultPrefix = "/api/trpc"

// maxBatchSize bounds the number of calls in one batched request.
const maxBatchSize = 32

// Handler dispatches tRPC requests to a router.
type Handler struct {
	router      *rpc.Router
	contexts    *rpc.ContextBuilder
	prefix      string
	logger      *slog.Logger
	development bool
}

// Option is a functional option for configuring Handler.
type Option func(*Handler)

// WithPrefix sets the path prefix stripped before procedure lookup.
// Default is "/api/trpc".
func WithPrefix(prefix string) Option {
	return func(h *Handler) {
		h.prefix = strings.TrimRight(prefix, "/")
	}
}

// WithLogger sets the logger used for internal procedure failures.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithDevelopment includes stack traces in internal failure logs.
func WithDevelopment(dev bool) Option {
	return func(h *Handler) {
		h.development = dev
	}
}

// NewHandler creates a Handler.
func NewHandler(router *rpc.Router, contexts *rpc.ContextBuilder, opts ...Option) *Handler {
	h := &Handler{
		router:   router,
		contexts: contexts,
		prefix:   DefaultPrefix,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// call is one parsed invocation of a request.
type call struct {
	path  string
	input json.RawMessage
}

// Handle serves one tRPC request. Procedure failures are rendered into the
// response; the returned error is reserved for failures of the handler
// itself, such as an unreadable body.
func (h *Handler) Handle(ctx context.Context, r *http.Request) (*inbound.Response, error) {
	var kind rpc.Kind
	switch r.Method {
	case http.MethodGet:
		kind = rpc.KindQuery
	case http.MethodPost:
		kind = rpc.KindMutation
	default:
		return errorResponse(rpc.NewError(rpc.CodeMethodNotSupported,
			fmt.Sprintf("Unsupported method %s", r.Method))), nil
	}

	pathPart := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, h.prefix), "/")
	batch := isBatch(r)

	raw, err := h.readInput(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errorResponse(rpc.NewError(rpc.CodePayloadTooLarge, "Request entity too large")), nil
		}
		return nil, fmt.Errorf("reading trpc input: %w", err)
	}

	calls, rpcErr := parseCalls(pathPart, raw, batch)
	if rpcErr != nil {
		return errorResponse(rpcErr), nil
	}

	rc := h.contexts.Build(ctx, r.Header)

	results := make([]result, len(calls))
	if len(calls) == 1 {
		results[0] = h.invoke(ctx, rc, kind, calls[0])
	} else {
		var wg sync.WaitGroup
		for i, c := range calls {
			wg.Add(1)
			go func(i int, c call) {
				defer wg.Done()
				results[i] = h.invoke(ctx, rc, kind, c)
			}(i, c)
		}
		wg.Wait()
	}

	if !batch {
		return encode(results[0].status(), results[0].body())
	}
	bodies := make([]any, len(results))
	for i, res := range results {
		bodies[i] = res.body()
	}
	return encode(batchStatus(results), bodies)
}

// invoke runs one call against the router.
func (h *Handler) invoke(ctx context.Context, rc *rpc.Context, kind rpc.Kind, c call) result {
	p, ok := h.router.Lookup(c.path)
	if !ok {
		return result{err: rpc.NewError(rpc.CodeNotFound, fmt.Sprintf("No procedure found on path %q", c.path))}
	}
	if p.Kind() != kind {
		return result{err: rpc.NewError(rpc.CodeMethodNotSupported,
			fmt.Sprintf("Unsupported %s-method to %s procedure at path %q", methodFor(kind), p.Kind(), c.path))}
	}

	data, err := p.Call(ctx, rc, c.path, c.input)
	if err != nil {
		rpcErr := rpc.FromError(err)
		if rpcErr.Code == rpc.CodeInternalServerError {
			logging.TRPC(h.logger, c.path, rc.UserID()).Error("procedure failed",
				logging.ErrorAttrs(err, h.development))
		}
		return result{err: rpcErr}
	}
	return result{data: data}
}

// readInput returns the raw input: the input query parameter for GET and
// the body for POST.
func (h *Handler) readInput(r *http.Request) (json.RawMessage, error) {
	if r.Method == http.MethodGet {
		if v := r.URL.Query().Get("input"); v != "" {
			return json.RawMessage(v), nil
		}
		return nil, nil
	}
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// parseCalls splits a request into calls.
func parseCalls(pathPart string, raw json.RawMessage, batch bool) ([]call, *rpc.Error) {
	if pathPart == "" {
		return nil, rpc.NewError(rpc.CodeNotFound, "No procedure path given")
	}
	if len(raw) > 0 && !json.Valid(raw) {
		return nil, rpc.NewError(rpc.CodeParseError, "Unable to parse input as JSON")
	}

	if !batch {
		return []call{{path: pathPart, input: raw}}, nil
	}

	paths := strings.Split(pathPart, ",")
	if len(paths) > maxBatchSize {
		return nil, rpc.NewError(rpc.CodeBadRequest, fmt.Sprintf("Batch exceeds %d calls", maxBatchSize))
	}
	inputs := map[string]json.RawMessage{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &inputs); err != nil {
			return nil, rpc.NewError(rpc.CodeParseError, `Batch input must be an object keyed by call index`)
		}
	}
	calls := make([]call, len(paths))
	for i, p := range paths {
		calls[i] = call{path: p, input: inputs[strconv.Itoa(i)]}
	}
	return calls, nil
}

func isBatch(r *http.Request) bool {
	v := r.URL.Query().Get("batch")
	return v == "1" || v == "true"
}

func methodFor(kind rpc.Kind) string {
	if kind == rpc.KindMutation {
		return "POST"
	}
	return "GET"
}

// result is the outcome of one call.
type result struct {
	data any
	err  *rpc.Error
}

func (r result) status() int {
	if r.err != nil {
		return r.err.HTTPStatus()
	}
	return http.StatusOK
}

func (r result) body() any {
	if r.err != nil {
		return errorBody(r.err)
	}
	return map[string]any{"result": map[string]any{"data": r.data}}
}

// batchStatus is 200 if every call succeeded, the shared status if all
// calls answered the same status, and 207 otherwise.
func batchStatus(results []result) int {
	status := results[0].status()
	for _, r := range results[1:] {
		if r.status() != status {
			return http.StatusMultiStatus
		}
	}
	return status
}

func errorBody(e *rpc.Error) map[string]any {
	body := map[string]any{"error": e.Message, "code": e.Code}
	if e.Details != nil {
		body["details"] = e.Details
	}
	return body
}

func errorResponse(e *rpc.Error) *inbound.Response {
	resp, err := encode(e.HTTPStatus(), errorBody(e))
	if err != nil {
		return &inbound.Response{Status: http.StatusInternalServerError, Header: http.Header{}}
	}
	return resp
}

func encode(status int, v any) (*inbound.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding trpc response: %w", err)
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &inbound.Response{Status: status, Header: h, Body: body}, nil
}
