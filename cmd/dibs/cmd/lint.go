package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/efortin/gpu-dibs/pkg/session"
)

var lintCmd = &cobra.Command{
	Use:   "lint FILE...",
	Short: "Check pod manifests against the session contract",
	Long: `Decode one or more pod manifests and check the rules a session pod
must satisfy: required identity fields, requests within limits, a whole
positive GPU count with request equal to limit, mounts backed by declared
volumes, and node affinity restricted to In, NotIn, Exists and
DoesNotExist.

Exits non-zero when any file fails to decode or has problems.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		failed := 0

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(out, "❌ %s: %v\n", path, err)
				failed++
				continue
			}

			pod, err := session.DecodeManifest(data)
			if err != nil {
				fmt.Fprintf(out, "❌ %s: %v\n", path, err)
				failed++
				continue
			}

			problems := session.Lint(pod)
			if len(problems) == 0 {
				fmt.Fprintf(out, "✅ %s\n", path)
				continue
			}

			failed++
			fmt.Fprintf(out, "❌ %s: %d problem(s)\n", path, len(problems))
			for _, problem := range problems {
				fmt.Fprintf(out, "   %s\n", problem)
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d manifest(s) failed lint", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lintCmd)
}
