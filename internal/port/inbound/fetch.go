// Package inbound defines the inbound port interfaces of the API server.
// Inbound adapters (net/http, in-process callers) call these interfaces.
package inbound

import (
	"context"
	"net/http"
)

// Response is a fully buffered HTTP response produced by a Fetcher.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Fetcher answers one request with one response. The server is a pure
// request to response function so it can be mounted behind any transport.
type Fetcher interface {
	// Fetch runs the full pipeline for req. It never returns an error;
	// failures are rendered as error responses.
	Fetch(ctx context.Context, req *http.Request) *Response
}
