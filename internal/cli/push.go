package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vpnlab/tunnelbench/config"
	"github.com/vpnlab/tunnelbench/internal/metrics"
)

var (
	pushResultFile string
	pushVPNType    string
	pushTarget     string
	pushGatewayURL string
	pushLatency    bool
	pushDryRun     bool

	pushCmd = &cobra.Command{
		Use:   "push",
		Short: "Push an iperf3 JSON result to a Prometheus Pushgateway",
		Long: `Parses the JSON artifact of a completed benchmark run and records its
throughput, loss, and CPU figures as vpn_iperf_* gauges grouped by
vpn_type and target.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch pushVPNType {
			case "wireguard", "ipsec", "direct":
			default:
				return fmt.Errorf("vpn-type must be wireguard, ipsec, or direct; got %q", pushVPNType)
			}

			data, err := os.ReadFile(pushResultFile)
			if err != nil {
				return fmt.Errorf("failed to read result file: %v", err)
			}
			summary, err := metrics.ParseIperfJSON(data)
			if err != nil {
				return err
			}

			if pushLatency {
				if latency, err := metrics.PingLatency(cmd.Context(), pushTarget, 10); err == nil {
					summary.LatencyAvgMs = latency
				} else {
					fmt.Fprintf(os.Stderr, "latency probe failed: %v\n", err)
				}
			}

			fmt.Printf("Throughput (TX): %.2f Mbps\n", summary.ThroughputMbps)
			fmt.Printf("Throughput (RX): %.2f Mbps\n", summary.ThroughputRecvMbps)
			fmt.Printf("Retransmits:     %d\n", summary.Retransmits)
			if summary.LatencyAvgMs >= 0 {
				fmt.Printf("Latency (avg):   %.2f ms\n", summary.LatencyAvgMs)
			}

			if pushDryRun {
				fmt.Println("(dry run - metrics not pushed)")
				return nil
			}

			url := pushGatewayURL
			job := "iperf_test"
			if site, err := config.LoadSite(configPath); err == nil {
				if url == "" {
					url = site.Pushgateway.URL
				}
				job = site.Pushgateway.Job
			}

			pusher := &metrics.Pusher{URL: url, Job: job}
			if err := pusher.Push(cmd.Context(), pushVPNType, pushTarget, summary); err != nil {
				return fmt.Errorf("failed to push to Pushgateway at %s: %v", url, err)
			}
			fmt.Printf("Metrics pushed to %s\n", url)
			return nil
		},
	}
)

func init() {
	flags := pushCmd.Flags()
	flags.StringVar(&pushResultFile, "result", "", "iperf3 JSON result file (required)")
	flags.StringVar(&pushVPNType, "vpn-type", "", "vpn type label: wireguard, ipsec, or direct (required)")
	flags.StringVar(&pushTarget, "target", "", "benchmark target label (required)")
	flags.StringVar(&pushGatewayURL, "pushgateway", "", "Pushgateway base URL (default from site config)")
	flags.BoolVar(&pushLatency, "latency-test", false, "also run a ping latency probe")
	flags.BoolVar(&pushDryRun, "dry-run", false, "print metrics without pushing")
	_ = pushCmd.MarkFlagRequired("result")
	_ = pushCmd.MarkFlagRequired("vpn-type")
	_ = pushCmd.MarkFlagRequired("target")
}
