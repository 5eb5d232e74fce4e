package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/efortin/gpu-dibs/pkg/kubernetes"
)

var (
	namespace  string
	kubeconfig string
)

var rootCmd = &cobra.Command{
	Use:   "dibs",
	Short: "Call dibs on a GPU node before somebody else does",
	Long: `gpu-dibs reserves GPU nodes by parking placeholder session pods on them.

A session pod pins the exact GPU product you need through required node
affinity, requests the GPU with request == limit as the device plugin
expects, then idles on a sleep command so you can exec in and work on
the hardware. Sessions are released explicitly or reaped after sitting
idle too long.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// SetVersion wires build information into the root command so
// `dibs --version` reports what the binary was built from.
func SetVersion(version, commit, date string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", getEnvOrDefault("DIBS_NAMESPACE", "default"), "Namespace for session pods")
	rootCmd.PersistentFlags().StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (default: in-cluster, then $KUBECONFIG, then ~/.kube/config)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// clusterClients dials the cluster the way every online command does.
func clusterClients() (*kubernetes.SessionManager, *kubernetes.ProfileClient, error) {
	restConfig, err := kubernetes.LoadRESTConfig(kubeconfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load kubernetes config: %w", err)
	}
	clientset, dynamicClient, err := kubernetes.NewClients(restConfig)
	if err != nil {
		return nil, nil, err
	}
	return kubernetes.NewSessionManager(clientset, namespace), kubernetes.NewProfileClient(dynamicClient), nil
}
