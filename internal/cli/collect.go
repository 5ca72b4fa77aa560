package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpnlab/tunnelbench/internal/collect"
)

var (
	collectDir string

	collectCmd = &cobra.Command{
		Use:   "collect",
		Short: "Package run artifacts and diagnostics into a zip archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			zipName := fmt.Sprintf("tunnelbench-%s.zip", time.Now().Format("20060102-150405"))
			if err := collect.Archive(zipName, collectDir); err != nil {
				return fmt.Errorf("failed to collect artifacts: %v", err)
			}
			fmt.Printf("Created %s with artifacts, config, and diagnostics.\n", zipName)
			return nil
		},
	}
)

func init() {
	collectCmd.Flags().StringVar(&collectDir, "out", ".", "artifact directory to package")
}
