package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	corev1 "k8s.io/api/core/v1"

	"github.com/efortin/gpu-dibs/pkg/kubernetes"
	"github.com/efortin/gpu-dibs/pkg/session"
)

var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show session status",
	Long: `Without arguments, list every session in the namespace. With a name,
show the full status of that session: phase, node, GPU, owner and how
long it has been idle.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, _, err := clusterClients()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if len(args) == 1 {
			return printSession(ctx, cmd, manager, args[0])
		}
		return printSessions(ctx, cmd, manager)
	},
}

func printSessions(ctx context.Context, cmd *cobra.Command, manager *kubernetes.SessionManager) error {
	pods, err := manager.List(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(pods) == 0 {
		fmt.Fprintf(out, "No sessions in namespace %s\n", manager.Namespace())
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPHASE\tNODE\tGPU\tIDLE")
	for i := range pods {
		pod := &pods[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%d x %s\t%s\n",
			pod.Name, pod.Status.Phase, valueOrDash(pod.Spec.NodeName),
			session.GPUCountOf(pod), session.GPUProductOf(pod), idleFor(pod))
	}
	return w.Flush()
}

func printSession(ctx context.Context, cmd *cobra.Command, manager *kubernetes.SessionManager, name string) error {
	pod, err := manager.Get(ctx, name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:          %s\n", pod.Name)
	fmt.Fprintf(out, "Namespace:     %s\n", pod.Namespace)
	fmt.Fprintf(out, "Phase:         %s\n", pod.Status.Phase)
	fmt.Fprintf(out, "Node:          %s\n", valueOrDash(pod.Spec.NodeName))
	fmt.Fprintf(out, "GPU:           %d x %s\n", session.GPUCountOf(pod), session.GPUProductOf(pod))
	if len(pod.Spec.Containers) > 0 {
		fmt.Fprintf(out, "Image:         %s\n", pod.Spec.Containers[0].Image)
	}
	if owner := pod.Annotations[session.AnnotationOwner]; owner != "" {
		fmt.Fprintf(out, "Owner:         %s\n", owner)
	}
	if profile := pod.Annotations[session.AnnotationProfile]; profile != "" {
		fmt.Fprintf(out, "Profile:       %s\n", profile)
	}
	if last, ok := session.LastActivity(pod); ok {
		fmt.Fprintf(out, "Last activity: %s (idle %s)\n", last.Format(time.RFC3339), time.Since(last).Round(time.Second))
	}
	if timeout, ok := session.IdleTimeoutOf(pod); ok {
		fmt.Fprintf(out, "Idle timeout:  %s\n", timeout)
	}
	fmt.Fprintf(out, "Created:       %s\n", pod.CreationTimestamp.UTC().Format(time.RFC3339))
	return nil
}

func idleFor(pod *corev1.Pod) string {
	last, ok := session.LastActivity(pod)
	if !ok {
		return "-"
	}
	return time.Since(last).Round(time.Second).String()
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
