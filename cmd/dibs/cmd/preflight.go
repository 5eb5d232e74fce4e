package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/efortin/gpu-dibs/pkg/kubernetes"
	"github.com/efortin/gpu-dibs/pkg/rbac"
	"github.com/efortin/gpu-dibs/pkg/session"
)

var (
	preflightProduct string
	preflightGPUs    int64
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Verify RBAC, the SessionProfile CRD and candidate GPU nodes",
	Long: `Check everything a reservation needs before submitting one: that the
current identity holds the required RBAC permissions, that the
SessionProfile CRD is installed and established, and that at least one
schedulable node offers the wanted GPU product.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		restConfig, err := kubernetes.LoadRESTConfig(kubeconfig)
		if err != nil {
			return fmt.Errorf("failed to load kubernetes config: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if err := rbac.VerifyPermissions(ctx, restConfig, namespace); err != nil {
			return err
		}
		fmt.Fprintln(out, "✅ RBAC permissions verified")
		fmt.Fprintln(out, "✅ SessionProfile CRD installed")

		clientset, _, err := kubernetes.NewClients(restConfig)
		if err != nil {
			return err
		}
		manager := kubernetes.NewSessionManager(clientset, namespace)

		candidates, err := manager.CandidateNodes(ctx, preflightProduct, preflightGPUs)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return fmt.Errorf("no schedulable node carries %s=%s with %d allocatable %s",
				session.GPUProductLabel, preflightProduct, preflightGPUs, session.ResourceGPU)
		}

		fmt.Fprintf(out, "✅ %d candidate node(s) for %d x %s:\n", len(candidates), preflightGPUs, preflightProduct)
		for i := range candidates {
			node := &candidates[i]
			allocatable := node.Status.Allocatable[session.ResourceGPU]
			fmt.Fprintf(out, "   %s (%s allocatable)\n", node.Name, allocatable.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(preflightCmd)

	defaults := session.DefaultSpec()
	preflightCmd.Flags().StringVar(&preflightProduct, "gpu-product", defaults.GPUProduct, "GPU product label value to check for")
	preflightCmd.Flags().Int64Var(&preflightGPUs, "gpus", defaults.GPUCount, "Number of GPUs a node must have allocatable")
}
