// Package cli defines the tunnelbench command-line surface.
package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vpnlab/tunnelbench/config"
	"github.com/vpnlab/tunnelbench/internal/session"
	"github.com/vpnlab/tunnelbench/internal/version"
)

var (
	runOpts    config.Options
	configPath string

	rootCmd = &cobra.Command{
		Use:   "tunnelbench [flags]",
		Short: "Capture-and-benchmark orchestration for VPN tunnels",
		Long: `tunnelbench wraps a one-shot iperf3 throughput run in a background
tcpdump capture scoped to the tunnel's UDP port, writing a pcap, a JSON
result, and a capture log per run. Server runs accept exactly one exchange;
client runs send a timed load (UDP defaults to an unlimited rate).`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Optional .env sits alongside the flag defaults.
			_ = godotenv.Load()

			// Env fills in only what the operator left defaulted.
			config.ApplyEnv(&runOpts, cmd.Flags().Changed)

			cfg, err := config.Resolve(runOpts)
			if err != nil {
				return err
			}

			site, err := config.LoadSite(configPath)
			if err != nil {
				return err
			}
			if err := site.InitializeLogging(); err != nil {
				return err
			}
			if cfg.Debug {
				log.SetFlags(log.LstdFlags | log.Lshortfile)
			}

			return session.New().Run(context.Background(), cfg)
		},
	}
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.Flags()
	flags.StringVar(&runOpts.Role, "role", "", "run role: server or client (required)")
	flags.StringVar(&runOpts.Peer, "peer", "", "server address to benchmark against (required for client)")
	flags.StringVar(&runOpts.BindAddr, "bind", "", "explicit server listen address")
	flags.BoolVar(&runOpts.BindAuto, "bind-auto", false, "auto-detect the tunnel-side listen address")
	flags.IntVar(&runOpts.WGPort, "wgport", 51820, "tunnel UDP port the capture filter matches")
	flags.IntVar(&runOpts.BenchPort, "port", 5201, "iperf3 benchmark port")
	flags.StringVar(&runOpts.Proto, "proto", "tcp", "benchmark protocol: tcp or udp")
	flags.IntVar(&runOpts.DurationSec, "duration", 10, "benchmark duration in seconds")
	flags.StringVar(&runOpts.OutputDir, "out", ".", "directory for run artifacts")
	flags.StringVar(&runOpts.Interface, "iface", "any", "capture interface name")
	flags.BoolVar(&runOpts.NoCapture, "no-capture", false, "skip the packet capture")
	flags.BoolVar(&runOpts.Debug, "debug", false, "verbose logging")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "site config file (default tunnelbench.json)")

	rootCmd.AddCommand(matrixCmd, pushCmd, exporterCmd, collectCmd)
}

// Execute runs the CLI. Every fatal condition prints one diagnostic line to
// stderr and exits non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tunnelbench: %v\n", err)
		os.Exit(1)
	}
}
