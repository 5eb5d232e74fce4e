package kubernetes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/efortin/gpu-dibs/pkg/session"
)

func gpuNode(name, product string, gpus int64) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: map[string]string{session.GPUProductLabel: product},
		},
		Status: corev1.NodeStatus{
			Allocatable: corev1.ResourceList{
				session.ResourceGPU: *resource.NewQuantity(gpus, resource.DecimalSI),
			},
		},
	}
}

func TestCandidateNodes(t *testing.T) {
	rtx3090 := gpuNode("gpu-node-1", "NVIDIA-GeForce-RTX-3090", 2)
	a100 := gpuNode("gpu-node-2", "NVIDIA-A100-SXM4-80GB", 8)
	drained := gpuNode("gpu-node-3", "NVIDIA-GeForce-RTX-3090", 2)
	drained.Spec.Unschedulable = true
	exhausted := gpuNode("gpu-node-4", "NVIDIA-GeForce-RTX-3090", 0)
	cpuOnly := &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "cpu-node-1"}}

	clientset := fake.NewSimpleClientset(rtx3090, a100, drained, exhausted, cpuOnly)
	manager := NewSessionManager(clientset, "gpu-lab")

	nodes, err := manager.CandidateNodes(context.Background(), "NVIDIA-GeForce-RTX-3090", 1)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "gpu-node-1", nodes[0].Name)
}

func TestCandidateNodesGPUCount(t *testing.T) {
	clientset := fake.NewSimpleClientset(gpuNode("gpu-node-1", "NVIDIA-GeForce-RTX-3090", 2))
	manager := NewSessionManager(clientset, "gpu-lab")
	ctx := context.Background()

	nodes, err := manager.CandidateNodes(ctx, "NVIDIA-GeForce-RTX-3090", 2)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	nodes, err = manager.CandidateNodes(ctx, "NVIDIA-GeForce-RTX-3090", 4)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestCandidateNodesNoMatch(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	manager := NewSessionManager(clientset, "gpu-lab")

	nodes, err := manager.CandidateNodes(context.Background(), "NVIDIA-H100-PCIe", 1)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}
