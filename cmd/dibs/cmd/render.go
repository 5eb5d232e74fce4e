package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/efortin/gpu-dibs/pkg/session"
)

var (
	renderFlags  specFlags
	renderOutput string
)

var renderCmd = &cobra.Command{
	Use:   "render [name]",
	Short: "Render a session pod manifest without touching the cluster",
	Long: `Render the pod manifest a session would be created from and print it.

The manifest is built from the house defaults, overlaid with the profile
(when one is named) and the flags. Nothing is submitted; pipe the output
to a file or straight into kubectl apply.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "gpu-session"
		if len(args) > 0 {
			name = args[0]
		}

		spec, err := renderFlags.buildSpec(cmd, name, nil)
		if err != nil {
			return err
		}

		pod, err := session.BuildPod(spec)
		if err != nil {
			return err
		}

		var data []byte
		switch renderOutput {
		case "yaml":
			data, err = session.EncodeManifest(pod)
		case "json":
			data, err = session.EncodeManifestJSON(pod)
		default:
			return fmt.Errorf("unsupported output format %q, want yaml or json", renderOutput)
		}
		if err != nil {
			return err
		}
		if renderOutput == "json" {
			data = append(data, '\n')
		}

		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderFlags.register(renderCmd)
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "yaml", "Output format: yaml or json")
}
