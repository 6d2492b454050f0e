// Package cmd provides the CLI commands for Voltig Turbo.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voltigdev/voltig-turbo/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "voltig-turbo",
	Short: "Voltig Turbo - API server",
	Long: `Voltig Turbo is the API server behind the Voltig apps.

It serves email/password authentication, a tRPC API for todos and an admin
API, behind tiered rate limiting, security headers and request logging.

Quick start:
  1. Set DATABASE_URL (or use --dev for a local SQLite file)
  2. Run: voltig-turbo start --dev

Configuration:
  Config is loaded from voltig-turbo.yaml in the current directory,
  $HOME/.voltig-turbo/, or /etc/voltig-turbo/, then from .env and the
  environment. NODE_ENV, PORT, DATABASE_URL, AUTH_SECRET, API_SECRET_KEY,
  BASE_URL, REDIS_URL, RATE_LIMIT_MAX, RATE_LIMIT_WINDOW, LOG_LEVEL and
  ENABLE_SECURITY_HEADERS are read by name; other keys use the VOLTIG_
  prefix, e.g. VOLTIG_SERVER_REQUEST_TIMEOUT=10s.

Commands:
  start       Start the API server
  migrate     Apply or roll back database migrations
  hash-key    Hash an API secret key for config
  config      Print the effective configuration
  stop        Stop the running server
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./voltig-turbo.yaml)")
}

func initConfig() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	config.InitViper(cfgFile)
}
