// Package bench runs one-shot iperf3 throughput measurements.
package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"

	"github.com/vpnlab/tunnelbench/config"
)

// ErrBenchmarkFailed wraps iperf3's own diagnostics when the tool reports
// failure. The output is passed through, not reinterpreted.
var ErrBenchmarkFailed = errors.New("benchmark failed")

// commandContext is swapped out in tests.
var commandContext = exec.CommandContext

// ThroughputBenchmarker abstracts the benchmark tool so orchestration can be
// tested without real network transport.
type ThroughputBenchmarker interface {
	// Run executes exactly one benchmark exchange and streams the tool's
	// raw JSON output to out.
	Run(ctx context.Context, cfg *config.RunConfig, out io.Writer) error
}

// Iperf3Runner shells out to iperf3. Server runs are single-shot (-1): one
// accepted exchange, then exit.
type Iperf3Runner struct{}

func NewIperf3Runner() *Iperf3Runner {
	return &Iperf3Runner{}
}

func (r *Iperf3Runner) Run(ctx context.Context, cfg *config.RunConfig, out io.Writer) error {
	var args []string
	switch cfg.Role {
	case config.RoleServer:
		bindAddr, err := resolveBindAddr(cfg)
		if err != nil {
			return err
		}
		if err := ensurePortFree(ctx, cfg.BenchPort); err != nil {
			return err
		}
		args = []string{"-s", "-1", "-p", strconv.Itoa(cfg.BenchPort), "-J"}
		if bindAddr != "" {
			args = append(args, "-B", bindAddr)
		}
	case config.RoleClient:
		args = []string{
			"-c", cfg.Peer,
			"-p", strconv.Itoa(cfg.BenchPort),
			"-t", strconv.Itoa(cfg.DurationSec),
			"-J",
		}
		if cfg.Proto == config.ProtoUDP {
			// -b 0 removes the default 1 Mbit/s UDP cap. Inherited
			// behavior; it can saturate the link.
			args = append(args, "-u", "-b", "0")
		}
	}

	log.Printf("[bench] running iperf3 %s", strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := commandContext(ctx, "iperf3", args...)
	cmd.Stdout = out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%w: %s", ErrBenchmarkFailed, msg)
	}
	return nil
}

// resolveBindAddr applies the configured bind strategy. Empty string means
// no listen restriction.
func resolveBindAddr(cfg *config.RunConfig) (string, error) {
	switch cfg.BindMode {
	case config.BindExplicit:
		return cfg.BindAddr, nil
	case config.BindAuto:
		return AutoDetectBindAddr()
	default:
		return "", nil
	}
}
