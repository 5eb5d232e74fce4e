package kubernetes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/efortin/gpu-dibs/pkg/session"
)

func testSpec(name string) session.Spec {
	s := session.DefaultSpec()
	s.Name = name
	s.Namespace = "gpu-lab"
	return s
}

func TestSessionManagerReserve(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	manager := NewSessionManager(clientset, "gpu-lab")
	ctx := context.Background()

	pod, err := manager.Reserve(ctx, testSpec("train-mlp"))
	require.NoError(t, err)
	assert.Equal(t, "train-mlp", pod.Name)
	assert.Equal(t, "gpu-lab", pod.Namespace)

	stored, err := clientset.CoreV1().Pods("gpu-lab").Get(ctx, "train-mlp", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, session.AppName, stored.Labels[session.LabelApp])
	assert.Equal(t, session.ManagerName, stored.Labels[session.LabelManagedBy])
}

func TestSessionManagerReserveDuplicate(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	manager := NewSessionManager(clientset, "gpu-lab")
	ctx := context.Background()

	_, err := manager.Reserve(ctx, testSpec("train-mlp"))
	require.NoError(t, err)

	_, err = manager.Reserve(ctx, testSpec("train-mlp"))
	require.Error(t, err)
	assert.True(t, apierrors.IsAlreadyExists(err))
}

func TestSessionManagerReserveWrongNamespace(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	manager := NewSessionManager(clientset, "gpu-lab")

	spec := testSpec("train-mlp")
	spec.Namespace = "somewhere-else"

	_, err := manager.Reserve(context.Background(), spec)
	assert.Error(t, err)
}

func TestSessionManagerReserveInvalidSpec(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	manager := NewSessionManager(clientset, "gpu-lab")

	spec := testSpec("train-mlp")
	spec.GPUCount = 0

	_, err := manager.Reserve(context.Background(), spec)
	assert.Error(t, err)
}

func TestSessionManagerGet(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	manager := NewSessionManager(clientset, "gpu-lab")
	ctx := context.Background()

	t.Run("missing session", func(t *testing.T) {
		_, err := manager.Get(ctx, "nope")
		require.Error(t, err)
		_, ok := err.(*SessionNotFoundError)
		assert.True(t, ok, "want SessionNotFoundError, got %T", err)
	})

	t.Run("existing session", func(t *testing.T) {
		_, err := manager.Reserve(ctx, testSpec("train-mlp"))
		require.NoError(t, err)

		pod, err := manager.Get(ctx, "train-mlp")
		require.NoError(t, err)
		assert.Equal(t, "train-mlp", pod.Name)
	})

	t.Run("foreign pod is not a session", func(t *testing.T) {
		foreign := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "coredns", Namespace: "gpu-lab"}}
		_, err := clientset.CoreV1().Pods("gpu-lab").Create(ctx, foreign, metav1.CreateOptions{})
		require.NoError(t, err)

		_, err = manager.Get(ctx, "coredns")
		require.Error(t, err)
		_, ok := err.(*SessionNotFoundError)
		assert.True(t, ok, "want SessionNotFoundError, got %T", err)
	})
}

func TestSessionManagerExists(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	manager := NewSessionManager(clientset, "gpu-lab")
	ctx := context.Background()

	exists, err := manager.Exists(ctx, "train-mlp")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = manager.Reserve(ctx, testSpec("train-mlp"))
	require.NoError(t, err)

	exists, err = manager.Exists(ctx, "train-mlp")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSessionManagerList(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	manager := NewSessionManager(clientset, "gpu-lab")
	ctx := context.Background()

	_, err := manager.Reserve(ctx, testSpec("train-mlp"))
	require.NoError(t, err)
	_, err = manager.Reserve(ctx, testSpec("train-resnet"))
	require.NoError(t, err)

	// Unmanaged pods in the namespace must not show up
	foreign := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "coredns", Namespace: "gpu-lab"}}
	_, err = clientset.CoreV1().Pods("gpu-lab").Create(ctx, foreign, metav1.CreateOptions{})
	require.NoError(t, err)

	sessions, err := manager.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestSessionManagerRelease(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	manager := NewSessionManager(clientset, "gpu-lab")
	ctx := context.Background()

	_, err := manager.Reserve(ctx, testSpec("train-mlp"))
	require.NoError(t, err)

	require.NoError(t, manager.Release(ctx, "train-mlp"))

	_, err = clientset.CoreV1().Pods("gpu-lab").Get(ctx, "train-mlp", metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))

	err = manager.Release(ctx, "train-mlp")
	require.Error(t, err)
	_, ok := err.(*SessionNotFoundError)
	assert.True(t, ok, "want SessionNotFoundError, got %T", err)
}

func TestSessionManagerTouch(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	manager := NewSessionManager(clientset, "gpu-lab")
	ctx := context.Background()

	_, err := manager.Reserve(ctx, testSpec("train-mlp"))
	require.NoError(t, err)

	before := time.Now().Add(-time.Second)
	stamp, err := manager.Touch(ctx, "train-mlp")
	require.NoError(t, err)
	assert.True(t, stamp.After(before))

	pod, err := manager.Get(ctx, "train-mlp")
	require.NoError(t, err)
	last, ok := session.LastActivity(pod)
	require.True(t, ok)
	assert.True(t, last.After(before))

	_, err = manager.Touch(ctx, "nope")
	assert.Error(t, err)
}

func TestSessionManagerWaitReady(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	manager := NewSessionManager(clientset, "gpu-lab")
	ctx := context.Background()

	pod, err := manager.Reserve(ctx, testSpec("train-mlp"))
	require.NoError(t, err)

	t.Run("pending pod times out", func(t *testing.T) {
		_, err := manager.WaitReady(ctx, "train-mlp", 50*time.Millisecond)
		assert.Error(t, err)
	})

	t.Run("running pod returns", func(t *testing.T) {
		pod.Status.Phase = corev1.PodRunning
		pod.Spec.NodeName = "gpu-node-1"
		_, err := clientset.CoreV1().Pods("gpu-lab").UpdateStatus(ctx, pod, metav1.UpdateOptions{})
		require.NoError(t, err)

		ready, err := manager.WaitReady(ctx, "train-mlp", 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, corev1.PodRunning, ready.Status.Phase)
	})

	t.Run("failed pod errors out fast", func(t *testing.T) {
		pod.Status.Phase = corev1.PodFailed
		_, err := clientset.CoreV1().Pods("gpu-lab").UpdateStatus(ctx, pod, metav1.UpdateOptions{})
		require.NoError(t, err)

		_, err = manager.WaitReady(ctx, "train-mlp", 5*time.Second)
		assert.Error(t, err)
	})
}

func TestSessionManagerVerifyPodSpec(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	manager := NewSessionManager(clientset, "gpu-lab")
	ctx := context.Background()

	spec := testSpec("train-mlp")
	_, err := manager.Reserve(ctx, spec)
	require.NoError(t, err)

	drift, err := manager.VerifyPodSpec(ctx, "train-mlp", spec)
	require.NoError(t, err)
	assert.Empty(t, drift)

	changed := spec
	changed.Image = "pytorch/pytorch:2.4.0-cuda12.4-cudnn9-runtime"
	changed.GPUProduct = "NVIDIA-A100-SXM4-80GB"

	drift, err = manager.VerifyPodSpec(ctx, "train-mlp", changed)
	require.NoError(t, err)
	assert.NotEmpty(t, drift)
}
