// Package main makes a CPU-only node look like a GPU node so gpu-dibs
// can be exercised on disposable clusters (k3d, kind) without hardware.
//
// It adds the gpu-feature-discovery product label and advertises
// nvidia.com/gpu capacity through the node status subresource. Pods
// scheduled onto the faked capacity run without device isolation, which
// is all an idle sleep container needs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	kubeclient "k8s.io/client-go/kubernetes"

	"github.com/efortin/gpu-dibs/pkg/kubernetes"
	"github.com/efortin/gpu-dibs/pkg/session"
)

func main() {
	var (
		nodeName   = flag.String("node", os.Getenv("NODE_NAME"), "Node to fake GPUs on (default: the first node)")
		gpuProduct = flag.String("gpu-product", envOrDefault("GPU_PRODUCT", "NVIDIA-GeForce-RTX-3090"), "GPU product label value to advertise")
		gpuCount   = flag.Int64("gpus", 1, "Number of GPUs to advertise")
		remove     = flag.Bool("remove", false, "Remove the fake GPU label and capacity instead")
		kubeconfig = flag.String("kubeconfig", "", "Path to kubeconfig")
	)
	flag.Parse()

	restConfig, err := kubernetes.LoadRESTConfig(*kubeconfig)
	if err != nil {
		log.Fatalf("❌ Failed to load kubernetes config: %v", err)
	}
	clientset, _, err := kubernetes.NewClients(restConfig)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := *nodeName
	if name == "" {
		nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
		if err != nil {
			log.Fatalf("❌ Failed to list nodes: %v", err)
		}
		if len(nodes.Items) == 0 {
			log.Fatalf("❌ No nodes in the cluster")
		}
		name = nodes.Items[0].Name
	}

	if *remove {
		if err := removeFakeGPU(ctx, clientset, name); err != nil {
			log.Fatalf("❌ %v", err)
		}
		log.Printf("✅ Removed fake GPU from node %s", name)
		return
	}

	if err := applyFakeGPU(ctx, clientset, name, *gpuProduct, *gpuCount); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Printf("✅ Node %s now advertises %d x %s", name, *gpuCount, *gpuProduct)
}

// gpuPath is the nvidia.com/gpu resource name in JSON patch form, with
// the slash escaped as ~1.
func gpuPath() string {
	return strings.ReplaceAll(string(session.ResourceGPU), "/", "~1")
}

func applyFakeGPU(ctx context.Context, clientset kubeclient.Interface, node, product string, count int64) error {
	labelPatch := fmt.Sprintf(`{"metadata":{"labels":{%q:%q}}}`, session.GPUProductLabel, product)
	if _, err := clientset.CoreV1().Nodes().Patch(ctx, node, types.MergePatchType, []byte(labelPatch), metav1.PatchOptions{}); err != nil {
		return fmt.Errorf("failed to label node %s: %w", node, err)
	}

	// Capacity lives on the status subresource; allocatable follows.
	capacityPatch := fmt.Sprintf(`[{"op":"add","path":"/status/capacity/%s","value":"%d"}]`, gpuPath(), count)
	if _, err := clientset.CoreV1().Nodes().Patch(ctx, node, types.JSONPatchType, []byte(capacityPatch), metav1.PatchOptions{}, "status"); err != nil {
		return fmt.Errorf("failed to advertise gpu capacity on node %s: %w", node, err)
	}
	return nil
}

func removeFakeGPU(ctx context.Context, clientset kubeclient.Interface, node string) error {
	labelPatch := fmt.Sprintf(`{"metadata":{"labels":{%q:null}}}`, session.GPUProductLabel)
	if _, err := clientset.CoreV1().Nodes().Patch(ctx, node, types.MergePatchType, []byte(labelPatch), metav1.PatchOptions{}); err != nil {
		return fmt.Errorf("failed to unlabel node %s: %w", node, err)
	}

	capacityPatch := fmt.Sprintf(`[{"op":"remove","path":"/status/capacity/%s"}]`, gpuPath())
	if _, err := clientset.CoreV1().Nodes().Patch(ctx, node, types.JSONPatchType, []byte(capacityPatch), metav1.PatchOptions{}, "status"); err != nil {
		return fmt.Errorf("failed to remove gpu capacity from node %s: %w", node, err)
	}
	return nil
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
