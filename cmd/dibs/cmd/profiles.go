package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the SessionProfiles installed in the cluster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, profiles, err := clusterClients()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		list, err := profiles.ListProfiles(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No session profiles installed")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tGPU\tCPU\tMEMORY\tIMAGE\tIDLE TIMEOUT")
		for _, profile := range list {
			spec := profile.Spec
			gpu := "-"
			if spec.GPUProduct != "" {
				gpu = fmt.Sprintf("%d x %s", spec.GPUCount, spec.GPUProduct)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				profile.Name, gpu, valueOrDash(spec.CPULimit), valueOrDash(spec.MemoryLimit),
				valueOrDash(spec.Image), valueOrDash(spec.IdleTimeout))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}
