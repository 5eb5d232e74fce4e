package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var downCmd = &cobra.Command{
	Use:   "down NAME",
	Short: "Release a session and free its GPU node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, _, err := clusterClients()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if err := manager.Release(ctx, args[0]); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Session %s/%s released\n", manager.Namespace(), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downCmd)
}
