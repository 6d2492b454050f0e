package cmd

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeProcess exits after stopAfter liveness checks once stopped.
type fakeProcess struct {
	mu        sync.Mutex
	running   bool
	stopped   bool
	killed    bool
	checks    int
	stopAfter int
	stopErr   error
}

func (p *fakeProcess) alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped && p.stopAfter >= 0 {
		p.checks++
		if p.checks > p.stopAfter {
			p.running = false
		}
	}
	return p.running
}

func (p *fakeProcess) stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return p.stopErr
}

func (p *fakeProcess) kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	p.running = false
	return nil
}

func TestStopServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		proc       *fakeProcess
		wantErr    error
		wantKilled bool
		wantOut    string
	}{
		{"graceful", &fakeProcess{running: true, stopAfter: 2}, nil, false, "Server stopped."},
		{"killed after budget", &fakeProcess{running: true, stopAfter: -1}, nil, true, "Server killed."},
		{"not running", &fakeProcess{}, errNotRunning, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			err := stopServer(&out, tt.proc, 50*time.Millisecond, time.Millisecond)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("stopServer() error = %v, want %v", err, tt.wantErr)
			}
			if tt.proc.killed != tt.wantKilled {
				t.Errorf("killed = %v, want %v", tt.proc.killed, tt.wantKilled)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output = %q, want %q", out.String(), tt.wantOut)
			}
		})
	}
}

func TestStopServer_SignalError(t *testing.T) {
	t.Parallel()

	proc := &fakeProcess{running: true, stopAfter: -1, stopErr: errors.New("operation not permitted")}
	err := stopServer(&bytes.Buffer{}, proc, time.Second, time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "failed to stop server") {
		t.Fatalf("stopServer() error = %v", err)
	}
	if proc.killed {
		t.Error("process killed after a failed stop signal")
	}
}

func TestStopBudget(t *testing.T) {
	stopTimeout = 3 * time.Second
	defer func() { stopTimeout = 0 }()

	if got := stopBudget(); got != 3*time.Second {
		t.Errorf("stopBudget() with --timeout = %v, want 3s", got)
	}

	stopTimeout = 0
	if got := stopBudget(); got != 10*time.Second+stopMargin {
		t.Errorf("stopBudget() = %v, want shutdown timeout + margin", got)
	}
}
