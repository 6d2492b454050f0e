//go:build windows

package cmd

import (
	"os"

	"golang.org/x/sys/windows"
)

// gracefulSignals returns the OS signals to capture for graceful shutdown.
// SIGTERM does not exist on Windows.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// stillActive is the exit code reported for a running process.
const stillActive = 259

// processIsAlive opens a handle to proc and checks its exit code.
func processIsAlive(proc *os.Process) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(proc.Pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	return exitCode == stillActive
}

// sendGracefulStop terminates the process; Kill calls TerminateProcess.
func sendGracefulStop(proc *os.Process) error {
	return proc.Kill()
}
