package kubernetes

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/efortin/gpu-dibs/pkg/session"
)

// CandidateNodes lists schedulable nodes carrying the wanted GPU product
// label with enough allocatable GPUs for one session. An empty result
// means a session for this product would stay Pending forever.
func (m *SessionManager) CandidateNodes(ctx context.Context, gpuProduct string, gpuCount int64) ([]corev1.Node, error) {
	selector := labels.Set{session.GPUProductLabel: gpuProduct}.String()
	list, err := m.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	var candidates []corev1.Node
	for _, node := range list.Items {
		if node.Spec.Unschedulable {
			continue
		}
		allocatable, ok := node.Status.Allocatable[session.ResourceGPU]
		if !ok {
			continue
		}
		if available, exact := allocatable.AsInt64(); !exact || available < gpuCount {
			continue
		}
		candidates = append(candidates, node)
	}
	return candidates, nil
}
