package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/adapter/inbound/admin"
	"github.com/voltigdev/voltig-turbo/internal/adapter/inbound/http"
	"github.com/voltigdev/voltig-turbo/internal/adapter/inbound/trpc"
	"github.com/voltigdev/voltig-turbo/internal/adapter/outbound/cel"
	"github.com/voltigdev/voltig-turbo/internal/adapter/outbound/memory"
	"github.com/voltigdev/voltig-turbo/internal/adapter/outbound/redisstore"
	"github.com/voltigdev/voltig-turbo/internal/adapter/outbound/sqlstore"
	"github.com/voltigdev/voltig-turbo/internal/config"
	"github.com/voltigdev/voltig-turbo/internal/domain/ratelimit"
	"github.com/voltigdev/voltig-turbo/internal/domain/rpc"
	"github.com/voltigdev/voltig-turbo/internal/domain/session"
	"github.com/voltigdev/voltig-turbo/internal/service"
	"github.com/voltigdev/voltig-turbo/internal/telemetry"
)

// sessionSweepInterval is how often expired sessions are deleted.
const sessionSweepInterval = 15 * time.Minute

// server is the wired application. Close releases everything newServer
// opened, in reverse order.
type server struct {
	transport *http.HTTPTransport
	tiers     []ratelimit.Tier
	closers   []func() error
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// serverOptions carries the parts of the wiring chosen on the command line.
type serverOptions struct {
	// migrate applies pending migrations even when auto_migrate is off.
	migrate bool
	// telemetryOut receives stdout exporter output.
	telemetryOut io.Writer
}

// newServer wires the database, rate limiter, auth provider, tRPC API,
// admin API, metrics and the HTTP transport from cfg. Background work is
// bound to ctx.
func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts serverOptions) (s *server, err error) {
	ctx, cancel := context.WithCancel(ctx)
	s = &server{cancel: cancel}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()
	dev := cfg.IsDevelopment()

	// Telemetry.
	telOpts := []telemetry.Option{telemetry.WithServiceVersion(Version)}
	if opts.telemetryOut != nil {
		telOpts = append(telOpts, telemetry.WithWriter(opts.telemetryOut))
	}
	tel, err := telemetry.Setup(ctx, cfg.Telemetry, "voltig-turbo", telOpts...)
	if err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}
	s.onClose(func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tel.Shutdown(shutdownCtx)
	})

	// Database.
	db, err := sqlstore.Open(ctx, cfg.Database.URL, sqlstore.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: config.MustDuration(cfg.Database.ConnMaxLifetime, 30*time.Minute),
	})
	if err != nil {
		return nil, err
	}
	s.onClose(db.Close)
	logger.Info("database connected", "dialect", db.Dialect())

	if cfg.Database.AutoMigrate || opts.migrate {
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("applying migrations: %w", err)
		}
	}
	s.sweepSessions(ctx, db.Sessions(), logger.With("component", "session-sweeper"))

	// Metrics and statistics.
	reg := http.NewRegistry()
	metrics := http.NewMetrics(reg)
	stats := service.NewStatsService()

	// Rate limiting.
	var limiter ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		switch cfg.RateLimit.Store {
		case "redis":
			rl, err := redisstore.Dial(ctx, cfg.RateLimit.RedisURL)
			if err != nil {
				return nil, err
			}
			s.onClose(rl.Close)
			limiter = rl
		default:
			rl := memory.NewRateLimiterWithConfig(config.MustDuration(cfg.RateLimit.CleanupInterval, 5*time.Minute))
			rl.StartCleanup(ctx)
			s.onClose(func() error { rl.Stop(); return nil })
			limiter = rl
		}
		s.tiers, err = cel.CompileTiers(cfg.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("compiling rate limit tiers: %w", err)
		}
		logger.Info("rate limiting enabled", "store", cfg.RateLimit.Store, "tiers", s.TierNames())
	}

	// Auth provider.
	sessions := session.NewSessionService(db.Sessions(), session.Config{
		ExpiresIn: config.MustDuration(cfg.Auth.SessionExpiresIn, 7*24*time.Hour),
		UpdateAge: config.MustDuration(cfg.Auth.SessionUpdateAge, 24*time.Hour),
	})
	authSvc := service.NewAuthService(db.Users(), sessions, service.NewLogMailer(logger),
		service.AuthOptionsFromConfig(cfg), logger)

	// tRPC API.
	rpcObservers := rpc.Observers{metrics}
	if otelObs, err := telemetry.NewRPCObserver(tel.MeterProvider); err != nil {
		logger.Warn("OpenTelemetry RPC metrics disabled", "error", err)
	} else {
		rpcObservers = append(rpcObservers, otelObs)
	}
	builder := rpc.NewBuilder(rpc.Timing(rpc.TimingOptions{
		InjectDelay: !cfg.IsProduction(),
		Tracer:      tel.Tracer(),
		Observer:    rpcObservers,
	}))
	trpcHandler := trpc.NewHandler(service.NewAppRouter(builder), rpc.NewContextBuilder(db, authSvc),
		trpc.WithPrefix(http.TRPCPrefix),
		trpc.WithLogger(logger),
		trpc.WithDevelopment(dev))

	// Admin API.
	adminAPI := admin.NewAdminAPIHandler(
		admin.WithDatabase(db),
		admin.WithRateLimiter(limiter, s.TierNames()...),
		admin.WithStatsService(stats),
		admin.WithBuildInfo(&admin.BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}),
		admin.WithAPILogger(logger),
	)

	router := http.NewRouter(http.RouterOptions{
		Auth:         authSvc,
		TRPC:         trpcHandler,
		Admin:        adminAPI.Routes(),
		Metrics:      http.MetricsHandler(reg),
		Health:       http.NewHealthChecker(db, limiter, metrics, Version),
		APISecretKey: cfg.Auth.APISecretKey,
		Development:  dev,
	})

	pipeline := http.NewPipeline(http.PipelineOptions{
		Development:       dev,
		SecurityHeaders:   cfg.Security.Headers,
		Limiter:           limiter,
		Tiers:             s.tiers,
		MaxBodyBytes:      cfg.Security.MaxBodyBytes,
		SuspiciousLogRate: cfg.Security.SuspiciousLogRate,
		Observer:          http.MultiObserver(metrics, stats),
	})

	s.transport = http.NewHTTPTransport(router,
		http.WithAddr(cfg.ListenAddr()),
		http.WithLogger(logger),
		http.WithPipeline(pipeline),
		http.WithCORS(http.CORSOptions{AllowedOrigins: cfg.CORS.AllowedOrigins, MaxAge: cfg.CORS.MaxAge}),
		http.WithMetrics(metrics),
		http.WithRequestRecorder(stats),
		http.WithDevelopment(dev),
		http.WithRequestTimeout(config.MustDuration(cfg.Server.RequestTimeout, http.DefaultRequestTimeout)),
		http.WithShutdownTimeout(config.MustDuration(cfg.Server.ShutdownTimeout, http.DefaultShutdownTimeout)),
	)
	return s, nil
}

// TierNames lists the compiled rate limit tiers in order.
func (s *server) TierNames() []string {
	names := make([]string, 0, len(s.tiers))
	for _, t := range s.tiers {
		names = append(names, t.Name)
	}
	return names
}

// sweepSessions deletes expired sessions every sessionSweepInterval until
// ctx is done.
func (s *server) sweepSessions(ctx context.Context, store session.SessionStore, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.DeleteExpired(ctx)
				if err != nil {
					logger.Warn("expired session cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Debug("expired sessions removed", "count", n)
				}
			}
		}
	}()
}

func (s *server) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close stops background workers and releases resources.
func (s *server) Close() error {
	s.cancel()
	s.wg.Wait()
	var errs []error
	for _, fn := range slices.Backward(s.closers) {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
