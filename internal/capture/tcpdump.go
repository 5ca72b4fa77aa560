package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

// ErrCaptureStartFailed means the capture process could not be confirmed
// running within the startup window. The run must abort before the
// benchmark executes so no traffic goes unrecorded.
var ErrCaptureStartFailed = errors.New("capture process failed to start")

// commandContext is swapped out in tests.
var commandContext = exec.CommandContext

// geteuid is swapped out in tests.
var geteuid = os.Geteuid

// Teardown timing, vars so tests can shorten the waits.
var (
	// startConfirmWait is how long Start watches for an immediate exit
	// before declaring the capture running.
	startConfirmWait = 500 * time.Millisecond
	// stopGraceWait is how long Stop waits after SIGINT before killing.
	stopGraceWait = 5 * time.Second
	// stopReapWait bounds the wait after SIGKILL. A process that survives
	// this is abandoned with an error rather than hanging the teardown.
	stopReapWait = 5 * time.Second
)

// TcpdumpCapturer runs tcpdump as a detached background process filtered to
// the tunnel's UDP port.
type TcpdumpCapturer struct{}

func NewTcpdumpCapturer() *TcpdumpCapturer {
	return &TcpdumpCapturer{}
}

// Start launches tcpdump writing to cfg.PCAPPath, with the tool's stderr in
// cfg.LogPath. It confirms the process survived the startup window; a
// process that exits immediately (bad interface, missing privileges) is
// reported as ErrCaptureStartFailed.
func (c *TcpdumpCapturer) Start(ctx context.Context, cfg Config) (*Handle, error) {
	logFile, err := os.Create(cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture log: %v", err)
	}

	args := []string{
		"-i", cfg.Interface,
		"-w", cfg.PCAPPath,
		"-n",      // Don't convert addresses
		"-q",      // Quick output
		"-s", "0", // Capture entire packet
		fmt.Sprintf("udp port %d", cfg.Port),
	}

	// Raw capture needs root; go through sudo when running unprivileged.
	name := "tcpdump"
	elevated := false
	if geteuid() != 0 {
		args = append([]string{"-n", "tcpdump"}, args...)
		name = "sudo"
		elevated = true
	}

	log.Printf("[capture] starting %s %v", name, args)
	// The capture process must outlive a context cancellation: teardown is
	// owned by Stop, which interrupts tcpdump only after the benchmark has
	// exited so trailing packets get flushed.
	cmd := commandContext(context.Background(), name, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// Own process group, so teardown can signal sudo and tcpdump together.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("%w: %v", ErrCaptureStartFailed, err)
	}

	h := &Handle{
		cmd:      cmd,
		pcapPath: cfg.PCAPPath,
		logPath:  cfg.LogPath,
		elevated: elevated,
		done:     make(chan struct{}),
	}
	go func() {
		h.waitErr = cmd.Wait()
		logFile.Close()
		close(h.done)
	}()

	// tcpdump prints its banner and keeps running; an immediate exit here
	// means the capture never came up.
	select {
	case <-h.done:
		return nil, fmt.Errorf("%w: process exited during startup: %v", ErrCaptureStartFailed, h.waitErr)
	case <-time.After(startConfirmWait):
	}

	log.Printf("[capture] running, pid=%d, pcap=%s", h.PID(), cfg.PCAPPath)
	return h, nil
}

// Stop interrupts the capture process and blocks, bounded, until it is
// reaped. A second Stop, or a Stop on a process that already exited, is a
// no-op. An error means the process survived both the interrupt and the
// kill; Stop still returns so the run can finish reporting.
func (c *TcpdumpCapturer) Stop(h *Handle) error {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	var stopErr error
	h.stopOnce.Do(func() {
		pid := h.cmd.Process.Pid
		// SIGINT makes tcpdump flush its buffers before exiting.
		if err := h.signal(syscall.SIGINT); err != nil {
			// Already gone; the wait goroutine reaps it.
			log.Printf("[capture] interrupt delivery skipped: %v", err)
		}
		select {
		case <-h.done:
		case <-time.After(stopGraceWait):
			log.Printf("[capture] pid=%d did not exit after interrupt, killing", pid)
			if err := h.signal(syscall.SIGKILL); err != nil {
				log.Printf("[capture] kill delivery failed: %v", err)
			}
			select {
			case <-h.done:
			case <-time.After(stopReapWait):
				stopErr = fmt.Errorf("capture pid=%d survived interrupt and kill", pid)
				return
			}
		}
		log.Printf("[capture] stopped, pid=%d", pid)
	})
	return stopErr
}

// signal delivers sig to the capture process group. An elevated capture is
// root-owned, so a plain Signal from the unprivileged parent gets EPERM;
// those go through sudo instead.
func (h *Handle) signal(sig syscall.Signal) error {
	pid := h.cmd.Process.Pid
	if h.elevated {
		kill := commandContext(context.Background(), "sudo", "-n", "kill",
			"-"+strconv.Itoa(int(sig)), "--", strconv.Itoa(-pid))
		return kill.Run()
	}
	if err := syscall.Kill(-pid, sig); err != nil {
		// Group already gone; try the process itself.
		return h.cmd.Process.Signal(sig)
	}
	return nil
}
