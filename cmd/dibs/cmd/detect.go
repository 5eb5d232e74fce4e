package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/efortin/gpu-dibs/pkg/stats"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the GPU product of the local machine",
	Long: `Query the local NVIDIA driver and print the gpu-feature-discovery
product label value of the installed GPUs, ready to paste into
--gpu-product or a SessionProfile.

Needs a binary built with CGO and the NVML library present.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		product, count, err := stats.DetectProduct()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d x %s\n", count, product)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
}
