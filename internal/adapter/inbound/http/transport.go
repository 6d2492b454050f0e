package http

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/logging"
	"github.com/voltigdev/voltig-turbo/internal/port/inbound"
)

// Default server timeouts.
const (
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// HTTPTransport is the inbound adapter that serves the API over HTTP.
// It wraps the router with the ambient middleware and the request pipeline.
type HTTPTransport struct {
	router          http.Handler
	server          *http.Server
	addr            string
	certFile        string
	keyFile         string
	logger          *slog.Logger
	pipeline        Pipeline
	cors            *CORSOptions
	metrics         *Metrics
	recorder        RequestRecorder
	development     bool
	requestTimeout  time.Duration
	shutdownTimeout time.Duration
	ready           chan net.Addr
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is ":4000".
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithLogger sets the root logger; request loggers derive from it.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithPipeline sets the request pipeline run before CORS and the router.
func WithPipeline(p Pipeline) Option {
	return func(t *HTTPTransport) {
		t.pipeline = p
	}
}

// WithCORS enables CORS for the given options.
func WithCORS(opts CORSOptions) Option {
	return func(t *HTTPTransport) {
		t.cors = &opts
	}
}

// WithMetrics records request metrics on every response.
func WithMetrics(m *Metrics) Option {
	return func(t *HTTPTransport) {
		t.metrics = m
	}
}

// WithRequestRecorder counts every completed request.
func WithRequestRecorder(r RequestRecorder) Option {
	return func(t *HTTPTransport) {
		t.recorder = r
	}
}

// WithDevelopment enables development behaviour: stack traces in error
// logs and the development CSP.
func WithDevelopment(dev bool) Option {
	return func(t *HTTPTransport) {
		t.development = dev
	}
}

// WithRequestTimeout bounds each request's context. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		t.requestTimeout = d
	}
}

// WithShutdownTimeout sets how long Start waits for in-flight requests
// after the context is cancelled.
func WithShutdownTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		t.shutdownTimeout = d
	}
}

// NewHTTPTransport creates an HTTP transport serving router.
func NewHTTPTransport(router http.Handler, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		router:          router,
		addr:            ":4000",
		logger:          slog.Default(),
		requestTimeout:  DefaultRequestTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
		ready:           make(chan net.Addr, 1),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Handler returns the full middleware chain around the router.
//
// Order (outermost first): request counting, metrics, request id, real IP,
// panic recovery, request timeout, request logging, CORS, the pipeline,
// router. Responses written by the pipeline (429, 413) are logged and
// carry the CORS headers.
func (t *HTTPTransport) Handler() http.Handler {
	h := t.pipeline.Then(t.router)
	if t.cors != nil {
		h = CORSMiddleware(*t.cors)(h)
	}
	h = RequestLogging(t.development)(h)
	h = TimeoutMiddleware(t.requestTimeout)(h)
	h = RecoverMiddleware(t.development)(h)
	h = RealIPMiddleware(h)
	h = RequestIDMiddleware(t.logger)(h)
	if t.metrics != nil {
		h = MetricsMiddleware(t.metrics)(h)
	}
	if t.recorder != nil {
		h = CountRequests(t.recorder)(h)
	}
	return h
}

// Fetch runs req through the full chain in-process.
func (t *HTTPTransport) Fetch(ctx context.Context, req *http.Request) *inbound.Response {
	return NewFetcher(t.Handler()).Fetch(ctx, req)
}

// Ready yields the bound listen address once Start is accepting connections.
func (t *HTTPTransport) Ready() <-chan net.Addr {
	return t.ready
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (t *HTTPTransport) Start(ctx context.Context) error {
	logger := logging.Server(t.logger)

	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// Configure TLS if certificates provided
	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	t.ready <- ln.Addr()

	// Channel for server errors
	errCh := make(chan error, 1)

	// Start server in goroutine
	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			logger.Info("starting HTTPS server", "addr", ln.Addr().String())
			err = t.server.ServeTLS(ln, t.certFile, t.keyFile)
		} else {
			logger.Info("starting HTTP server", "addr", ln.Addr().String())
			err = t.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer cancel()

	logger := logging.Server(t.logger)
	if err := t.server.Shutdown(ctx); err != nil {
		logger.Error("error during server shutdown", "error", err)
		return err
	}

	logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}

// Compile-time check that HTTPTransport implements the Fetcher interface.
var _ inbound.Fetcher = (*HTTPTransport)(nil)
