package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/voltigdev/voltig-turbo/internal/adapter/inbound/http"
	"github.com/voltigdev/voltig-turbo/internal/config"
)

const (
	stopPollInterval = 200 * time.Millisecond
	// stopMargin covers closing the database and flushing telemetry after
	// the HTTP server has drained.
	stopMargin = 5 * time.Second
)

var stopTimeout time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	Long: `Stop a running voltig-turbo server.

The PID is read from ~/.voltig-turbo/server.pid. The server is asked to shut
down gracefully and is killed if it is still running once the wait budget
is spent. The budget defaults to server.shutdown_timeout plus 5s.

Examples:
  voltig-turbo stop
  voltig-turbo stop --timeout 30s`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 0, "how long to wait before killing the server (default: shutdown timeout + 5s)")
	rootCmd.AddCommand(stopCmd)
}

// osProcess adapts *os.Process to the platform helpers.
type osProcess struct{ proc *os.Process }

func (p osProcess) alive() bool { return processIsAlive(p.proc) }
func (p osProcess) stop() error { return sendGracefulStop(p.proc) }
func (p osProcess) kill() error { return p.proc.Kill() }

// stoppable is a running server process.
type stoppable interface {
	alive() bool
	stop() error
	kill() error
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := pidFilePath()
	pid := readPIDFile(pidPath)
	if pid == 0 {
		return fmt.Errorf("no server PID file found at %s\nIs the server running?", pidPath)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("invalid PID %d: %w", pid, err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Stopping voltig-turbo server (PID %d)...\n", pid)
	err = stopServer(cmd.ErrOrStderr(), osProcess{proc}, stopBudget(), stopPollInterval)
	if err == nil || errors.Is(err, errNotRunning) {
		os.Remove(pidPath)
	}
	return err
}

// stopBudget returns --timeout, or the configured shutdown timeout plus
// stopMargin.
func stopBudget() time.Duration {
	if stopTimeout > 0 {
		return stopTimeout
	}
	shutdown := http.DefaultShutdownTimeout
	if cfg, err := config.LoadConfigRaw(); err == nil {
		shutdown = config.MustDuration(cfg.Server.ShutdownTimeout, shutdown)
	}
	return shutdown + stopMargin
}

var errNotRunning = errors.New("server is not running")

// stopServer asks p to stop and polls every interval until it exits or
// budget is spent, then kills it.
func stopServer(w io.Writer, p stoppable, budget, interval time.Duration) error {
	if !p.alive() {
		return fmt.Errorf("%w (stale PID file removed)", errNotRunning)
	}
	if err := p.stop(); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		time.Sleep(interval)
		if !p.alive() {
			fmt.Fprintln(w, "Server stopped.")
			return nil
		}
	}

	fmt.Fprintf(w, "Server still running after %s, killing it...\n", budget)
	if err := p.kill(); err != nil && p.alive() {
		return fmt.Errorf("failed to kill server: %w", err)
	}
	fmt.Fprintln(w, "Server killed.")
	return nil
}
