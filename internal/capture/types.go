package capture

import (
	"context"
	"os/exec"
	"sync"
)

// Config holds the parameters for one capture session.
type Config struct {
	// Interface is the network interface to capture from ("any" for all
	// interfaces).
	Interface string

	// Port is the tunnel UDP port the BPF filter matches on. This is the
	// WireGuard/IPsec port, not the benchmark port: benchmark traffic
	// crossing the tunnel shows up as encrypted datagrams on this port.
	Port int

	// PCAPPath is where the binary capture is written.
	PCAPPath string

	// LogPath receives the capture tool's own diagnostics.
	LogPath string
}

// Handle tracks a running capture process. It is owned by the supervisor
// that started it and lives for exactly one benchmark run.
type Handle struct {
	cmd      *exec.Cmd
	pcapPath string
	logPath  string
	// elevated records that the process was launched through sudo and is
	// root-owned; stop signals must then be delivered through sudo too.
	elevated bool
	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
}

// PID returns the capture process identifier, or 0 for a handle whose
// process never started.
func (h *Handle) PID() int {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// PCAPPath returns the capture artifact path.
func (h *Handle) PCAPPath() string {
	if h == nil {
		return ""
	}
	return h.pcapPath
}

// LogPath returns the capture log path.
func (h *Handle) LogPath() string {
	if h == nil {
		return ""
	}
	return h.logPath
}

// PacketCapturer abstracts the background capture tool so orchestration
// logic can be tested without privileged capture.
type PacketCapturer interface {
	// Start launches the capture and confirms it is running. A nil handle
	// with nil error means capture was not requested.
	Start(ctx context.Context, cfg Config) (*Handle, error)

	// Stop terminates and reaps the capture process. It is idempotent,
	// safe on a nil handle, and never errors on an already-exited
	// process.
	Stop(h *Handle) error
}
