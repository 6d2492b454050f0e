// Package http serves the Voltig Turbo API over HTTP.
//
// The transport wraps the Router with the ambient middleware (request id,
// real IP, panic recovery, timeouts, request logging), CORS, and the
// request Pipeline (security headers, tiered rate limiting, the body size
// guard, suspicious pattern logging). Responses the pipeline answers
// itself are logged and carry the CORS headers.
//
// # Usage
//
//	router := http.NewRouter(http.RouterOptions{
//	    Auth:   authService,
//	    TRPC:   trpcHandler,
//	    Health: health,
//	})
//	transport := http.NewHTTPTransport(router,
//	    http.WithAddr(":4000"),
//	    http.WithPipeline(http.NewPipeline(pipelineOpts)),
//	    http.WithCORS(http.CORSOptions{AllowedOrigins: origins, MaxAge: 86400}),
//	    http.WithLogger(logger),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	GET  /               - service banner and endpoint list
//	GET  /health         - database and rate limiter health
//	GET  /metrics        - Prometheus metrics (API key outside development)
//	*    /api/auth/*     - authentication provider
//	*    /api/trpc/*     - tRPC procedures (single and batched)
//	*    /api/admin/*    - admin API (API key outside development)
//
// # Errors
//
// Errors produced by the server itself are JSON objects with "error" and
// "code" fields, for example:
//
//	{"error":"Route not found","code":"NOT_FOUND"}
//
// tRPC procedure errors use the tRPC envelope produced by the trpc package.
//
// # In-process requests
//
// HTTPTransport.Fetch and NewFetcher drive the full chain without a
// listener. Tests use them to exercise the server end to end.
package http
