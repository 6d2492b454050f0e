package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"os"
	"os/signal"
	"slices"

	"github.com/spf13/cobra"

	"github.com/voltigdev/voltig-turbo/internal/adapter/inbound/http"
	"github.com/voltigdev/voltig-turbo/internal/config"
	"github.com/voltigdev/voltig-turbo/internal/logging"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server",
	Long: `Start the Voltig Turbo API server.

The server listens on PORT (default 4000) and serves:
  GET  /               service banner
  GET  /health         health checks
  GET  /metrics        Prometheus metrics
  *    /api/auth/*     authentication
  *    /api/trpc/*     tRPC API
  *    /api/admin/*    admin API

Examples:
  # Start in development mode with a local SQLite database
  voltig-turbo start --dev

  # Start against PostgreSQL and apply migrations first
  DATABASE_URL=postgres://localhost/voltig voltig-turbo start --migrate

  # Start with a specific config file
  voltig-turbo --config /path/to/config.yaml start`,
	RunE: runStart,
}

var (
	devMode     bool
	migrateFlag bool
)

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (NODE_ENV=development)")
	startCmd.Flags().BoolVar(&migrateFlag, "migrate", false, "Apply pending database migrations before serving")
	rootCmd.AddCommand(startCmd)
}

// loadConfig loads the configuration, applies --dev and validates.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.Env = config.EnvDevelopment
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := logging.New(os.Stderr, logging.Options{
		Level:       cfg.Server.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	slog.SetDefault(logger)

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		return err
	}

	logger.Info("voltig-turbo stopped")
	return nil
}

// run wires the server and serves until ctx is done.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	srv, err := newServer(ctx, cfg, logger, serverOptions{migrate: migrateFlag})
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("error during cleanup", "error", err)
		}
	}()

	go func() {
		select {
		case addr := <-srv.transport.Ready():
			printBanner(os.Stderr, cfg, addr.String())
			logStartup(logging.Server(logger), cfg, addr.String())
		case <-ctx.Done():
		}
	}()

	return srv.transport.Start(ctx)
}

// logStartup logs the bound address, base URL and every endpoint.
func logStartup(logger *slog.Logger, cfg *config.Config, addr string) {
	endpoints := http.Endpoints()
	logger.Info("voltig-turbo started",
		"version", Version,
		"env", cfg.Env,
		"addr", addr,
		"base_url", cfg.ResolvedBaseURL(),
		"rate_limit", cfg.RateLimit.Enabled,
		"security_headers", cfg.Security.Headers)
	for _, name := range slices.Sorted(maps.Keys(endpoints)) {
		logger.Info("endpoint available", "name", name, "path", endpoints[name])
	}
}

// printBanner prints a formatted startup banner to w.
func printBanner(w io.Writer, cfg *config.Config, addr string) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	mode := green + "production" + reset
	switch {
	case cfg.IsDevelopment():
		mode = yellow + "development" + reset + dim + " (no API key)" + reset
	case !cfg.IsProduction():
		mode = "default"
	}

	limits := "disabled"
	if cfg.RateLimit.Enabled {
		limits = fmt.Sprintf("%s, %d tiers", cfg.RateLimit.Store, len(cfg.RateLimit.Tiers))
	}

	local := addr
	if host, port, err := net.SplitHostPort(addr); err == nil && (host == "" || host == "0.0.0.0" || host == "::") {
		local = "localhost:" + port
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  %s%s Voltig Turbo %s%s\n", bold, cyan, Version, reset)
	fmt.Fprintf(w, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(w, "  %-14s http://%s\n", "Listening:", local)
	fmt.Fprintf(w, "  %-14s %s\n", "Base URL:", cfg.ResolvedBaseURL())
	fmt.Fprintf(w, "  %-14s %s\n", "Mode:", mode)
	fmt.Fprintf(w, "  %-14s %s\n", "Rate limits:", limits)
	fmt.Fprintf(w, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(w, "\n")
}
