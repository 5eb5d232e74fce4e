package session

import (
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"
)

// DecodeManifest parses a YAML (or JSON) pod manifest. Unknown fields are
// rejected so typos surface at lint time instead of being silently
// dropped by the API server.
func DecodeManifest(data []byte) (*corev1.Pod, error) {
	var pod corev1.Pod
	if err := yaml.UnmarshalStrict(data, &pod); err != nil {
		return nil, fmt.Errorf("decoding pod manifest: %w", err)
	}
	return &pod, nil
}

// EncodeManifest renders a pod back to YAML. Encoding then decoding the
// result yields a pod semantically equal to the input.
func EncodeManifest(pod *corev1.Pod) ([]byte, error) {
	data, err := yaml.Marshal(pod)
	if err != nil {
		return nil, fmt.Errorf("encoding pod manifest: %w", err)
	}
	return data, nil
}

// EncodeManifestJSON renders a pod as indented JSON for tools that want
// to post-process the manifest with jq and friends.
func EncodeManifestJSON(pod *corev1.Pod) ([]byte, error) {
	data, err := json.MarshalIndent(pod, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding pod manifest: %w", err)
	}
	return data, nil
}
