package exporter

import (
	"bytes"
	"context"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/vpnlab/tunnelbench/internal/metrics"
)

// wg show <iface> dump: first line is the interface, peer lines follow with
// tab-separated fields: pubkey, psk, endpoint, allowed-ips, handshake,
// rx bytes, tx bytes, keepalive.
func (e *Exporter) collectWireGuard(ctx context.Context) error {
	iface := e.cfg.WGInterface
	var out bytes.Buffer
	cmd := commandContext(ctx, "wg", "show", iface, "dump")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		e.tunnelStatus.WithLabelValues("wireguard", iface).Set(0)
		return err
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		e.tunnelStatus.WithLabelValues("wireguard", iface).Set(0)
		return nil
	}
	e.tunnelStatus.WithLabelValues("wireguard", iface).Set(1)

	for _, line := range lines[1:] {
		fields := strings.Split(line, "\t")
		if len(fields) < 8 {
			continue
		}
		pubKey := fields[0]
		if len(pubKey) > 12 {
			pubKey = pubKey[:12] + "..."
		}
		endpoint := fields[2]
		if endpoint == "(none)" {
			endpoint = "unknown"
		}
		if handshake, err := strconv.ParseFloat(fields[4], 64); err == nil {
			e.peerHandshake.WithLabelValues(iface, pubKey).Set(handshake)
		}
		if rx, err := strconv.ParseFloat(fields[5], 64); err == nil {
			e.peerRxBytes.WithLabelValues(iface, pubKey, endpoint).Set(rx)
		}
		if tx, err := strconv.ParseFloat(fields[6], 64); err == nil {
			e.peerTxBytes.WithLabelValues(iface, pubKey, endpoint).Set(tx)
		}
	}
	return nil
}

var (
	ipsecRxPattern = regexp.MustCompile(`(\d+)\s+bytes_i`)
	ipsecTxPattern = regexp.MustCompile(`(\d+)\s+bytes_o`)
)

func (e *Exporter) collectIPsec(ctx context.Context) error {
	var out bytes.Buffer
	cmd := commandContext(ctx, "ipsec", "statusall")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		e.tunnelStatus.WithLabelValues("ipsec", "").Set(0)
		return err
	}

	output := out.String()
	established := strings.Count(output, "ESTABLISHED")
	installed := strings.Count(output, "INSTALLED")

	status := 0.0
	if established > 0 {
		status = 1
	}
	e.tunnelStatus.WithLabelValues("ipsec", "").Set(status)
	e.ipsecEstablished.Set(float64(established))
	e.ipsecInstalled.Set(float64(installed))

	if m := ipsecRxPattern.FindStringSubmatch(output); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			e.ipsecRxBytes.Set(v)
		}
	}
	if m := ipsecTxPattern.FindStringSubmatch(output); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			e.ipsecTxBytes.Set(v)
		}
	}
	return nil
}

// procNetDev is swapped out in tests.
var procNetDev = "/proc/net/dev"

// ifacePrefixes limits interface counters to tunnel and uplink interfaces.
var ifacePrefixes = []string{"wg", "tun", "ipsec", "eth", "ens", "enp"}

func (e *Exporter) collectNetDev() error {
	data, err := os.ReadFile(procNetDev)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) > 2 {
		lines = lines[2:] // Skip header lines
	}
	for _, line := range lines {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		iface := strings.TrimSpace(parts[0])
		interesting := false
		for _, prefix := range ifacePrefixes {
			if strings.HasPrefix(iface, prefix) {
				interesting = true
				break
			}
		}
		if !interesting {
			continue
		}
		stats := strings.Fields(parts[1])
		if len(stats) < 12 {
			continue
		}
		set := func(stat string, idx int) {
			if v, err := strconv.ParseFloat(stats[idx], 64); err == nil {
				e.ifaceStats.WithLabelValues(iface, stat).Set(v)
			}
		}
		set("rx_bytes", 0)
		set("rx_packets", 1)
		set("rx_errors", 2)
		set("rx_drops", 3)
		set("tx_bytes", 8)
		set("tx_packets", 9)
		set("tx_errors", 10)
		set("tx_drops", 11)
	}
	return nil
}

func (e *Exporter) collectLatency(ctx context.Context) {
	for _, target := range e.cfg.PingTargets {
		latency, err := metrics.PingLatency(ctx, target, 3)
		if err != nil {
			e.collectErrors.WithLabelValues("latency").Inc()
			continue
		}
		e.latency.WithLabelValues(target).Set(latency)
	}
}
