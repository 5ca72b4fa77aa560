// Package exporter serves WireGuard and IPsec tunnel metrics in Prometheus
// format for the lab monitoring stack to scrape.
package exporter

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/exec"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// commandContext is swapped out in tests.
var commandContext = exec.CommandContext

// Config controls which collectors run and how often.
type Config struct {
	Listen          string
	WGInterface     string
	IPsecCheck      bool
	CollectInterval time.Duration
	PingTargets     []string
}

// Exporter collects tunnel metrics on an interval and serves them over
// /metrics, with /health for liveness probes.
type Exporter struct {
	cfg Config
	reg *prometheus.Registry

	tunnelStatus     *prometheus.GaugeVec
	peerRxBytes      *prometheus.GaugeVec
	peerTxBytes      *prometheus.GaugeVec
	peerHandshake    *prometheus.GaugeVec
	ipsecEstablished prometheus.Gauge
	ipsecInstalled   prometheus.Gauge
	ipsecRxBytes     prometheus.Gauge
	ipsecTxBytes     prometheus.Gauge
	ifaceStats       *prometheus.GaugeVec
	latency          *prometheus.GaugeVec
	collectErrors    *prometheus.CounterVec
}

func New(cfg Config) *Exporter {
	if cfg.CollectInterval <= 0 {
		cfg.CollectInterval = 10 * time.Second
	}
	e := &Exporter{
		cfg: cfg,
		reg: prometheus.NewRegistry(),
		tunnelStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vpn_tunnel_status",
			Help: "VPN tunnel status (1=up, 0=down).",
		}, []string{"vpn_type", "interface"}),
		peerRxBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wireguard_peer_receive_bytes_total",
			Help: "Total bytes received from WireGuard peer.",
		}, []string{"interface", "public_key", "endpoint"}),
		peerTxBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wireguard_peer_transmit_bytes_total",
			Help: "Total bytes sent to WireGuard peer.",
		}, []string{"interface", "public_key", "endpoint"}),
		peerHandshake: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wireguard_peer_last_handshake_seconds",
			Help: "Unix time of the peer's latest handshake.",
		}, []string{"interface", "public_key"}),
		ipsecEstablished: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ipsec_connections_established",
			Help: "Number of established IPsec connections.",
		}),
		ipsecInstalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ipsec_sas_installed",
			Help: "Number of installed IPsec security associations.",
		}),
		ipsecRxBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ipsec_receive_bytes_total",
			Help: "Bytes received over IPsec.",
		}),
		ipsecTxBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ipsec_transmit_bytes_total",
			Help: "Bytes transmitted over IPsec.",
		}),
		ifaceStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vpn_interface_stats",
			Help: "Network interface counters from /proc/net/dev.",
		}, []string{"interface", "stat"}),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vpn_latency_ms",
			Help: "VPN tunnel latency in milliseconds.",
		}, []string{"target"}),
		collectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vpn_exporter_collect_errors_total",
			Help: "Collector failures by component.",
		}, []string{"component"}),
	}
	e.reg.MustRegister(
		e.tunnelStatus, e.peerRxBytes, e.peerTxBytes, e.peerHandshake,
		e.ipsecEstablished, e.ipsecInstalled, e.ipsecRxBytes, e.ipsecTxBytes,
		e.ifaceStats, e.latency, e.collectErrors,
	)
	return e
}

// Run starts the collect loop and HTTP server, blocking until ctx is
// canceled or the server fails.
func (e *Exporter) Run(ctx context.Context) error {
	e.collect(ctx)
	go e.collectLoop(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: e.cfg.Listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[exporter] serving metrics on %s", e.cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (e *Exporter) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.CollectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.collect(ctx)
		}
	}
}

func (e *Exporter) collect(ctx context.Context) {
	if err := e.collectWireGuard(ctx); err != nil {
		e.collectErrors.WithLabelValues("wireguard").Inc()
		log.Printf("[exporter] wireguard collect: %v", err)
	}
	if e.cfg.IPsecCheck {
		if err := e.collectIPsec(ctx); err != nil {
			e.collectErrors.WithLabelValues("ipsec").Inc()
			log.Printf("[exporter] ipsec collect: %v", err)
		}
	}
	if err := e.collectNetDev(); err != nil {
		e.collectErrors.WithLabelValues("netdev").Inc()
		log.Printf("[exporter] netdev collect: %v", err)
	}
	e.collectLatency(ctx)
}
