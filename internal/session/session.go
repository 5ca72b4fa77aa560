// Package session drives one capture-and-benchmark run: background packet
// capture scoped around a foreground iperf3 exchange, with capture teardown
// guaranteed on every exit path.
package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/vpnlab/tunnelbench/config"
	"github.com/vpnlab/tunnelbench/internal/bench"
	"github.com/vpnlab/tunnelbench/internal/capture"
	"github.com/vpnlab/tunnelbench/internal/tools"
)

// phase tracks the run state machine for logging. Every terminal state goes
// through phaseStopping before the process exits.
type phase string

const (
	phaseInit         phase = "init"
	phaseCapturing    phase = "capturing"
	phaseBenchmarking phase = "benchmarking"
	phaseStopping     phase = "stopping"
	phaseDone         phase = "done"
)

// Session owns the collaborators for one run. Substituting fakes for the
// interfaces makes the orchestration testable without privileged capture or
// real network transport.
type Session struct {
	Capturer    capture.PacketCapturer
	Benchmarker bench.ThroughputBenchmarker
	Installer   tools.ToolInstaller

	// Console receives the benchmark output stream alongside the JSON
	// artifact. Defaults to stdout.
	Console io.Writer

	// DisableSignals skips signal handling (for tests).
	DisableSignals bool
}

// New returns a Session wired to the real tcpdump/iperf3 collaborators.
func New() *Session {
	return &Session{
		Capturer:    capture.NewTcpdumpCapturer(),
		Benchmarker: bench.NewIperf3Runner(),
		Installer:   tools.NewPackageInstaller(),
	}
}

// Run executes one capture-and-benchmark session. Ordering: the capture is
// confirmed running strictly before the benchmark starts, and stopped
// strictly after the benchmark process has fully exited, so no benchmark
// traffic is lost at either edge of the window.
func (s *Session) Run(ctx context.Context, cfg *config.RunConfig) (err error) {
	console := s.Console
	if console == nil {
		console = os.Stdout
	}

	s.logPhase(cfg, phaseInit)

	if cfg.CaptureEnabled {
		if err := s.Installer.Ensure(ctx, "tcpdump"); err != nil {
			return err
		}
	}
	if err := s.Installer.Ensure(ctx, "iperf3"); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Operator abort must still reach the capture teardown below, so the
	// signal only cancels the context; cleanup runs on the normal path.
	if !s.DisableSignals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				log.Printf("[session] received signal %v, shutting down", sig)
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	var handle *capture.Handle
	var stopOnce sync.Once
	stopCapture := func() {
		stopOnce.Do(func() {
			s.logPhase(cfg, phaseStopping)
			if stopErr := s.Capturer.Stop(handle); stopErr != nil {
				log.Printf("[session] capture stop: %v", stopErr)
			}
		})
	}
	defer stopCapture()

	if cfg.CaptureEnabled {
		capCfg := capture.Config{
			Interface: cfg.Interface,
			Port:      cfg.WGPort,
			PCAPPath:  filepath.Join(cfg.OutputDir, cfg.ArtifactName("capture", "pcap")),
			LogPath:   filepath.Join(cfg.OutputDir, cfg.ArtifactName("capture", "log")),
		}
		handle, err = s.Capturer.Start(ctx, capCfg)
		if err != nil {
			return err
		}
		s.logPhase(cfg, phaseCapturing)
	} else {
		log.Printf("[session] run=%s capture disabled", cfg.RunID)
	}

	resultPath := filepath.Join(cfg.OutputDir, cfg.ArtifactName("iperf", "json"))
	resultFile, err := os.Create(resultPath)
	if err != nil {
		return fmt.Errorf("failed to create result file: %v", err)
	}

	s.logPhase(cfg, phaseBenchmarking)
	benchErr := s.Benchmarker.Run(ctx, cfg, io.MultiWriter(console, resultFile))

	if closeErr := resultFile.Close(); closeErr != nil && benchErr == nil {
		benchErr = fmt.Errorf("failed to finalize result file: %v", closeErr)
	}

	// Stop strictly after the benchmark has exited so trailing packets are
	// flushed into the capture file.
	stopCapture()

	if benchErr == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			benchErr = fmt.Errorf("run interrupted: %v", ctxErr)
		}
	}
	if benchErr != nil {
		// A failed run leaves no result artifact; whatever iperf3 printed
		// before dying already went to the console.
		if rmErr := os.Remove(resultPath); rmErr != nil {
			log.Printf("[session] could not remove partial result: %v", rmErr)
		}
		return benchErr
	}

	if handle != nil {
		if summary, sumErr := capture.Summarize(handle.PCAPPath(), cfg.WGPort); sumErr != nil {
			log.Printf("[session] capture summary unavailable: %v", sumErr)
		} else {
			log.Printf("[session] capture summary: %s", summary)
		}
	}

	log.Printf("[session] result written to %s", resultPath)
	s.logPhase(cfg, phaseDone)
	return nil
}

func (s *Session) logPhase(cfg *config.RunConfig, p phase) {
	log.Printf("[session] run=%s role=%s proto=%s phase=%s", cfg.RunID, cfg.Role, cfg.Proto, p)
}
