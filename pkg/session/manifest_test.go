package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
)

const sampleManifest = `apiVersion: v1
kind: Pod
metadata:
  name: gpu-session
spec:
  restartPolicy: Never
  affinity:
    nodeAffinity:
      requiredDuringSchedulingIgnoredDuringExecution:
        nodeSelectorTerms:
          - matchExpressions:
              - key: nvidia.com/gpu.product
                operator: In
                values:
                  - NVIDIA-GeForce-RTX-3090
  containers:
    - name: session
      image: pytorch/pytorch:2.3.1-cuda12.1-cudnn8-runtime
      command: ["sleep", "infinity"]
      resources:
        requests:
          cpu: 4000m
          memory: 4500Mi
          nvidia.com/gpu: 1
        limits:
          cpu: 4500m
          memory: 4750Mi
          nvidia.com/gpu: 1
      volumeMounts:
        - name: scratch
          mountPath: /scratch
  volumes:
    - name: scratch
      emptyDir: {}
`

func TestDecodeManifest(t *testing.T) {
	pod, err := DecodeManifest([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "gpu-session", pod.Name)
	require.Len(t, pod.Spec.Containers, 1)
	assert.Equal(t, "session", pod.Spec.Containers[0].Name)

	gpu := pod.Spec.Containers[0].Resources.Requests[ResourceGPU]
	value, exact := gpu.AsInt64()
	assert.True(t, exact)
	assert.Equal(t, int64(1), value)

	assert.Empty(t, Lint(pod))
}

func TestDecodeManifestRejectsUnknownFields(t *testing.T) {
	manifest := `apiVersion: v1
kind: Pod
metadata:
  name: gpu-session
spec:
  sleepPolicy: forever
  containers:
    - name: session
      image: busybox
`
	_, err := DecodeManifest([]byte(manifest))
	assert.Error(t, err)
}

func TestDecodeManifestGarbage(t *testing.T) {
	_, err := DecodeManifest([]byte("{{{ not yaml"))
	assert.Error(t, err)
}

func TestManifestRoundTrip(t *testing.T) {
	s := DefaultSpec()
	s.Name = "train-mlp"
	s.Owner = "alice"
	s.ScratchSizeLimit = "20Gi"

	pod, err := BuildPod(s)
	require.NoError(t, err)

	encoded, err := EncodeManifest(pod)
	require.NoError(t, err)

	decoded, err := DecodeManifest(encoded)
	require.NoError(t, err)
	assert.True(t, apiequality.Semantic.DeepEqual(pod, decoded),
		"decoded pod differs from the original")

	// A second encode of the decoded pod is byte for byte stable
	reencoded, err := EncodeManifest(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(encoded), string(reencoded))
}

func TestSampleManifestRoundTrip(t *testing.T) {
	pod, err := DecodeManifest([]byte(sampleManifest))
	require.NoError(t, err)

	encoded, err := EncodeManifest(pod)
	require.NoError(t, err)

	decoded, err := DecodeManifest(encoded)
	require.NoError(t, err)
	assert.True(t, apiequality.Semantic.DeepEqual(pod, decoded))
}

func TestEncodeManifestJSON(t *testing.T) {
	s := DefaultSpec()
	s.Name = "train-mlp"

	pod, err := BuildPod(s)
	require.NoError(t, err)

	data, err := EncodeManifestJSON(pod)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind": "Pod"`)
	assert.Contains(t, string(data), `"nvidia.com/gpu"`)
}
