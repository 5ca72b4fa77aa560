package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpnlab/tunnelbench/config"
	"github.com/vpnlab/tunnelbench/internal/exporter"
)

var exporterCmd = &cobra.Command{
	Use:   "exporter",
	Short: "Serve WireGuard/IPsec tunnel metrics for Prometheus",
	Long: `Runs an HTTP endpoint exposing tunnel status, WireGuard peer counters,
IPsec SA counts, interface statistics, and ping latency in Prometheus
format. Collector settings come from the site config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		site, err := config.LoadSite(configPath)
		if err != nil {
			return err
		}
		if err := site.InitializeLogging(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		exp := exporter.New(exporter.Config{
			Listen:          site.Exporter.Listen,
			WGInterface:     site.Exporter.WGInterface,
			IPsecCheck:      site.Exporter.IPsecCheck,
			CollectInterval: time.Duration(site.Exporter.CollectIntervalSeconds) * time.Second,
			PingTargets:     site.Exporter.PingTargets,
		})
		return exp.Run(ctx)
	},
}
