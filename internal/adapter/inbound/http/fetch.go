package http

import (
	"bytes"
	"context"
	"net/http"

	"github.com/voltigdev/voltig-turbo/internal/port/inbound"
)

// handlerFetcher runs an http.Handler against a buffered response writer.
type handlerFetcher struct {
	handler http.Handler
}

// NewFetcher exposes h as an inbound.Fetcher, so the full server can be
// driven in-process without a listener.
func NewFetcher(h http.Handler) inbound.Fetcher {
	return &handlerFetcher{handler: h}
}

// Fetch implements inbound.Fetcher.
func (f *handlerFetcher) Fetch(ctx context.Context, req *http.Request) *inbound.Response {
	buf := &responseBuffer{header: make(http.Header)}
	f.handler.ServeHTTP(buf, req.WithContext(ctx))
	if buf.status == 0 {
		buf.status = http.StatusOK
	}
	return &inbound.Response{Status: buf.status, Header: buf.header, Body: buf.body.Bytes()}
}

// responseBuffer is an in-memory http.ResponseWriter.
type responseBuffer struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *responseBuffer) Header() http.Header { return b.header }

func (b *responseBuffer) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}
