package kubernetes

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"

	"github.com/efortin/gpu-dibs/pkg/apis/dibs/v1alpha1"
)

var sessionProfileGVR = schema.GroupVersionResource{
	Group:    "dibs.sir-alfred.io",
	Version:  "v1alpha1",
	Resource: "sessionprofiles",
}

// ProfileNotFoundError is returned when no SessionProfile with the given
// name exists in the cluster.
type ProfileNotFoundError struct {
	Name string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("session profile '%s' not found", e.Name)
}

// ProfileClient handles SessionProfile CRD operations
type ProfileClient struct {
	dynamicClient dynamic.Interface
}

// NewProfileClient creates a new profile client
func NewProfileClient(dynamicClient dynamic.Interface) *ProfileClient {
	return &ProfileClient{
		dynamicClient: dynamicClient,
	}
}

// GetProfile retrieves a SessionProfile by name (cluster-scoped)
func (c *ProfileClient) GetProfile(ctx context.Context, name string) (*v1alpha1.SessionProfile, error) {
	item, err := c.dynamicClient.Resource(sessionProfileGVR).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, &ProfileNotFoundError{Name: name}
		}
		return nil, fmt.Errorf("failed to get SessionProfile %q: %w", name, err)
	}

	profile := &v1alpha1.SessionProfile{}
	if err := convertUnstructuredToProfile(item, profile); err != nil {
		return nil, fmt.Errorf("failed to convert SessionProfile %q: %w", name, err)
	}
	return profile, nil
}

// ListProfiles returns all SessionProfiles (cluster-scoped)
func (c *ProfileClient) ListProfiles(ctx context.Context) ([]*v1alpha1.SessionProfile, error) {
	list, err := c.dynamicClient.Resource(sessionProfileGVR).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list SessionProfiles: %w", err)
	}

	profiles := make([]*v1alpha1.SessionProfile, 0, len(list.Items))
	for _, item := range list.Items {
		profile := &v1alpha1.SessionProfile{}
		if err := convertUnstructuredToProfile(&item, profile); err != nil {
			continue
		}
		profiles = append(profiles, profile)
	}

	return profiles, nil
}

// convertUnstructuredToProfile converts unstructured to typed SessionProfile
func convertUnstructuredToProfile(u *unstructured.Unstructured, profile *v1alpha1.SessionProfile) error {
	gvk := u.GetObjectKind().GroupVersionKind()
	profile.TypeMeta = metav1.TypeMeta{
		APIVersion: gvk.GroupVersion().String(),
		Kind:       gvk.Kind,
	}
	profile.ObjectMeta = metav1.ObjectMeta{
		Name:      u.GetName(),
		Namespace: u.GetNamespace(),
	}

	spec, found, err := unstructured.NestedMap(u.Object, "spec")
	if err != nil || !found {
		return fmt.Errorf("spec not found")
	}

	if gpuProduct, found, _ := unstructured.NestedString(spec, "gpuProduct"); found {
		profile.Spec.GPUProduct = gpuProduct
	}
	if gpuCount, found, _ := unstructured.NestedInt64(spec, "gpuCount"); found {
		profile.Spec.GPUCount = gpuCount
	}
	if cpuRequest, found, _ := unstructured.NestedString(spec, "cpuRequest"); found {
		profile.Spec.CPURequest = cpuRequest
	}
	if cpuLimit, found, _ := unstructured.NestedString(spec, "cpuLimit"); found {
		profile.Spec.CPULimit = cpuLimit
	}
	if memoryRequest, found, _ := unstructured.NestedString(spec, "memoryRequest"); found {
		profile.Spec.MemoryRequest = memoryRequest
	}
	if memoryLimit, found, _ := unstructured.NestedString(spec, "memoryLimit"); found {
		profile.Spec.MemoryLimit = memoryLimit
	}
	if image, found, _ := unstructured.NestedString(spec, "image"); found {
		profile.Spec.Image = image
	}
	if command, found, _ := unstructured.NestedStringSlice(spec, "command"); found {
		profile.Spec.Command = command
	}
	if scratchMountPath, found, _ := unstructured.NestedString(spec, "scratchMountPath"); found {
		profile.Spec.ScratchMountPath = scratchMountPath
	}
	if scratchSizeLimit, found, _ := unstructured.NestedString(spec, "scratchSizeLimit"); found {
		profile.Spec.ScratchSizeLimit = scratchSizeLimit
	}
	if idleTimeout, found, _ := unstructured.NestedString(spec, "idleTimeout"); found {
		profile.Spec.IdleTimeout = idleTimeout
	}

	if phase, found, _ := unstructured.NestedString(u.Object, "status", "phase"); found {
		profile.Status.Phase = phase
	}
	if message, found, _ := unstructured.NestedString(u.Object, "status", "message"); found {
		profile.Status.Message = message
	}

	return nil
}
