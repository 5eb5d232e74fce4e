package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/efortin/gpu-dibs/pkg/session"
)

var (
	upFlags         specFlags
	upWait          bool
	upWaitTimeout   time.Duration
	upSkipPreflight bool
)

var upCmd = &cobra.Command{
	Use:   "up NAME",
	Short: "Reserve a GPU node with a session pod",
	Long: `Create a session pod that pins a GPU node via required node affinity
and idles until you exec in.

Before submitting, the cluster is checked for at least one schedulable
node carrying the wanted GPU product with enough allocatable GPUs, so a
reservation that would stay Pending forever fails fast instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		manager, profiles, err := clusterClients()
		if err != nil {
			return err
		}

		spec, err := upFlags.buildSpec(cmd, name, profiles)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if !upSkipPreflight {
			candidates, err := manager.CandidateNodes(ctx, spec.GPUProduct, spec.GPUCount)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				return fmt.Errorf("no schedulable node carries %s=%s with %d allocatable %s; use --skip-preflight to submit anyway",
					session.GPUProductLabel, spec.GPUProduct, spec.GPUCount, session.ResourceGPU)
			}
		}

		pod, err := manager.Reserve(ctx, spec)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Session %s/%s reserved (%d x %s)\n", pod.Namespace, pod.Name, spec.GPUCount, spec.GPUProduct)

		if upWait {
			pod, err = manager.WaitReady(cmd.Context(), name, upWaitTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Running on node %s\n", pod.Spec.NodeName)
			fmt.Fprintf(out, "\nExec in with:\n  kubectl exec -it -n %s %s -- bash\n", pod.Namespace, pod.Name)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(upCmd)

	upFlags.register(upCmd)
	upCmd.Flags().BoolVar(&upWait, "wait", false, "Wait for the session pod to reach Running")
	upCmd.Flags().DurationVar(&upWaitTimeout, "wait-timeout", 5*time.Minute, "How long to wait for the session to start")
	upCmd.Flags().BoolVar(&upSkipPreflight, "skip-preflight", false, "Skip the candidate node check before submitting")
}
