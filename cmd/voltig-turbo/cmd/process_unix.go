//go:build !windows

package cmd

import (
	"errors"
	"os"
	"syscall"
)

// gracefulSignals are the signals that trigger a drain on Unix.
func gracefulSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// processIsAlive sends signal 0 to proc. EPERM means the process exists
// but belongs to another user.
func processIsAlive(proc *os.Process) bool {
	err := proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// sendGracefulStop sends SIGTERM; the server drains for
// server.shutdown_timeout before exiting.
func sendGracefulStop(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
