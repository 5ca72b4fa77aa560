package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vpnlab/tunnelbench/config"
	"github.com/vpnlab/tunnelbench/internal/bench"
	"github.com/vpnlab/tunnelbench/internal/matrix"
)

var (
	matrixTargets     []string
	matrixTargetsFile string
	matrixDuration    int
	matrixProto       string
	matrixOut         string

	matrixCmd = &cobra.Command{
		Use:   "matrix",
		Short: "Benchmark a list of labeled targets and write one CSV",
		Long: `Runs the client benchmark against each target in order (for example
the direct link and the tunnel address of the same peer) and records the
raw iperf3 JSON per target in iperf_results.csv. Targets come from
repeated --target flags, a --targets-file JSON list, or both; file
targets run first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var targets []matrix.Target
			if matrixTargetsFile != "" {
				fileTargets, err := matrix.LoadTargetsFile(matrixTargetsFile)
				if err != nil {
					return err
				}
				targets = fileTargets
			}
			for _, raw := range matrixTargets {
				t, err := matrix.ParseTarget(raw)
				if err != nil {
					return err
				}
				targets = append(targets, t)
			}
			if len(targets) == 0 {
				return fmt.Errorf("at least one --target label=host[:port] or --targets-file is required")
			}

			proto := config.Protocol(matrixProto)
			if proto != config.ProtoTCP && proto != config.ProtoUDP {
				return fmt.Errorf("%w: got %q", config.ErrInvalidProtocol, matrixProto)
			}
			if matrixDuration <= 0 {
				return fmt.Errorf("%w: got %d", config.ErrInvalidDuration, matrixDuration)
			}

			runner := &matrix.Runner{
				Benchmarker: bench.NewIperf3Runner(),
				DurationSec: matrixDuration,
				Proto:       proto,
				OutputDir:   matrixOut,
			}
			csvPath, err := runner.Run(cmd.Context(), targets)
			if err != nil {
				return err
			}
			fmt.Printf("Saved results to %s\n", csvPath)
			return nil
		},
	}
)

func init() {
	flags := matrixCmd.Flags()
	flags.StringArrayVar(&matrixTargets, "target", nil, "labeled target, label=host[:port] (repeatable)")
	flags.StringVar(&matrixTargetsFile, "targets-file", "", "JSON file with a list of {label, host, port} targets")
	flags.IntVar(&matrixDuration, "duration", 10, "per-target benchmark duration in seconds")
	flags.StringVar(&matrixProto, "proto", "tcp", "benchmark protocol: tcp or udp")
	flags.StringVar(&matrixOut, "out", ".", "directory for the results CSV")
}
