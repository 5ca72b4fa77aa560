// Package matrix runs the client benchmark against a list of labeled
// targets (direct link, tunnel, ...) and records the raw results in one CSV
// for side-by-side comparison.
package matrix

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vpnlab/tunnelbench/config"
	"github.com/vpnlab/tunnelbench/internal/bench"
)

// Target is one labeled benchmark destination.
type Target struct {
	Label string
	Host  string
	Port  int
}

// ParseTarget parses "label=host:port" (port optional, defaults to 5201).
func ParseTarget(s string) (Target, error) {
	label, addr, ok := strings.Cut(s, "=")
	if !ok || label == "" || addr == "" {
		return Target{}, fmt.Errorf("target %q must be label=host[:port]", s)
	}
	host, portStr, found := strings.Cut(addr, ":")
	if host == "" {
		return Target{}, fmt.Errorf("target %q has no host", s)
	}
	port := 5201
	if found {
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 1 || p > 65535 {
			return Target{}, fmt.Errorf("target %q has invalid port %q", s, portStr)
		}
		port = p
	}
	return Target{Label: label, Host: host, Port: port}, nil
}

// LoadTargetsFile reads a JSON array of targets, e.g.
// [{"label":"direct","host":"192.168.56.102"},{"label":"vpn","host":"10.0.0.2","port":5201}].
// Port is optional and defaults to 5201.
func LoadTargetsFile(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %v", err)
	}
	var entries []struct {
		Label string `json:"label"`
		Host  string `json:"host"`
		Port  int    `json:"port"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse targets file %s: %v", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("targets file %s lists no targets", path)
	}
	targets := make([]Target, 0, len(entries))
	for i, e := range entries {
		if e.Label == "" || e.Host == "" {
			return nil, fmt.Errorf("target %d in %s needs both label and host", i, path)
		}
		if e.Port == 0 {
			e.Port = 5201
		}
		if e.Port < 1 || e.Port > 65535 {
			return nil, fmt.Errorf("target %q in %s has invalid port %d", e.Label, path, e.Port)
		}
		targets = append(targets, Target{Label: e.Label, Host: e.Host, Port: e.Port})
	}
	return targets, nil
}

// Runner executes the matrix. Failures against one target are recorded in
// the CSV and do not stop the remaining targets.
type Runner struct {
	Benchmarker bench.ThroughputBenchmarker
	DurationSec int
	Proto       config.Protocol
	OutputDir   string
}

// Run benchmarks each target in order and writes iperf_results.csv under
// the output directory. Returns the CSV path.
func (r *Runner) Run(ctx context.Context, targets []Target) (string, error) {
	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %v", err)
	}

	records := [][]string{{"label", "host", "port", "elapsed_s", "json_or_error"}}
	for _, target := range targets {
		log.Printf("[matrix] running %s test against %s:%d", target.Label, target.Host, target.Port)

		cfg := &config.RunConfig{
			Role:        config.RoleClient,
			Peer:        target.Host,
			BenchPort:   target.Port,
			Proto:       r.Proto,
			DurationSec: r.DurationSec,
		}

		var out bytes.Buffer
		start := time.Now()
		err := r.Benchmarker.Run(ctx, cfg, &out)
		elapsed := time.Since(start).Seconds()

		cell := strings.TrimSpace(out.String())
		if err != nil {
			log.Printf("[matrix] %s test failed: %v", target.Label, err)
			cell = fmt.Sprintf("ERROR: %v", err)
		}
		records = append(records, []string{
			target.Label,
			target.Host,
			strconv.Itoa(target.Port),
			fmt.Sprintf("%.3f", elapsed),
			cell,
		})

		if ctx.Err() != nil {
			break
		}
	}

	csvPath := filepath.Join(r.OutputDir, "iperf_results.csv")
	f, err := os.Create(csvPath)
	if err != nil {
		return "", fmt.Errorf("failed to create results CSV: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return "", fmt.Errorf("failed to write results CSV: %v", err)
	}
	return csvPath, nil
}
