// Package session builds, validates and lints single-pod GPU session
// manifests. A session is one pod that reserves a GPU node so its owner
// can exec in and run interactive work on the hardware.
package session

import (
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/efortin/gpu-dibs/pkg/apis/dibs/v1alpha1"
)

const (
	// ResourceGPU is the extended resource name exposed by the NVIDIA device plugin.
	ResourceGPU = corev1.ResourceName("nvidia.com/gpu")

	// GPUProductLabel is the node label published by gpu-feature-discovery,
	// e.g. "nvidia.com/gpu.product=NVIDIA-GeForce-RTX-3090".
	GPUProductLabel = "nvidia.com/gpu.product"

	// AppName is the value of the app label on session pods.
	AppName = "gpu-session"
	// ManagerName identifies gpu-dibs as the owner of session pods.
	ManagerName = "gpu-dibs"

	// LabelApp marks a pod as a GPU session.
	LabelApp = "app"
	// LabelManagedBy marks a pod as managed by gpu-dibs.
	LabelManagedBy = "managed-by"
	// LabelSessionID carries the unique id assigned at reservation time.
	LabelSessionID = "dibs.sir-alfred.io/session-id"

	// AnnotationOwner records who reserved the session.
	AnnotationOwner = "dibs.sir-alfred.io/owner"
	// AnnotationProfile records the SessionProfile the session was built from.
	AnnotationProfile = "dibs.sir-alfred.io/profile"
	// AnnotationLastActivity is an RFC3339 timestamp bumped on every keepalive.
	AnnotationLastActivity = "dibs.sir-alfred.io/last-activity"
	// AnnotationIdleTimeout overrides the server-wide idle timeout for one session.
	AnnotationIdleTimeout = "dibs.sir-alfred.io/idle-timeout"

	// ContainerName is the name of the single session container.
	ContainerName = "session"
	// ScratchVolumeName is the name of the emptyDir scratch volume.
	ScratchVolumeName = "scratch"

	// DefaultNamespace is where sessions land when no namespace is given.
	DefaultNamespace = "default"
)

// DefaultCommand keeps the container alive without doing any work.
// The owner execs in to start the actual training job.
var DefaultCommand = []string{"sleep", "infinity"}

// Spec describes one GPU session reservation.
type Spec struct {
	Name      string
	Namespace string
	Owner     string
	Profile   string

	Image      string
	GPUProduct string
	GPUCount   int64

	CPURequest    string
	CPULimit      string
	MemoryRequest string
	MemoryLimit   string

	ScratchMountPath string
	ScratchSizeLimit string

	IdleTimeout string
	Command     []string
	ExtraLabels map[string]string
}

// DefaultSpec returns the house default: a single RTX 3090 with just
// under a full node share of CPU and memory, and a /scratch emptyDir.
func DefaultSpec() Spec {
	return Spec{
		Namespace:        DefaultNamespace,
		Image:            "pytorch/pytorch:2.3.1-cuda12.1-cudnn8-runtime",
		GPUProduct:       "NVIDIA-GeForce-RTX-3090",
		GPUCount:         1,
		CPURequest:       "4000m",
		CPULimit:         "4500m",
		MemoryRequest:    "4500Mi",
		MemoryLimit:      "4750Mi",
		ScratchMountPath: "/scratch",
		Command:          append([]string(nil), DefaultCommand...),
	}
}

// ApplyProfile overlays the non-empty fields of a SessionProfile onto the
// spec. Fields the profile does not set keep their current value, so the
// precedence is defaults < profile < explicit flags.
func (s *Spec) ApplyProfile(profile *v1alpha1.SessionProfile) {
	if profile == nil {
		return
	}
	s.Profile = profile.Name

	if profile.Spec.GPUProduct != "" {
		s.GPUProduct = profile.Spec.GPUProduct
	}
	if profile.Spec.GPUCount > 0 {
		s.GPUCount = profile.Spec.GPUCount
	}
	if profile.Spec.CPURequest != "" {
		s.CPURequest = profile.Spec.CPURequest
	}
	if profile.Spec.CPULimit != "" {
		s.CPULimit = profile.Spec.CPULimit
	}
	if profile.Spec.MemoryRequest != "" {
		s.MemoryRequest = profile.Spec.MemoryRequest
	}
	if profile.Spec.MemoryLimit != "" {
		s.MemoryLimit = profile.Spec.MemoryLimit
	}
	if profile.Spec.Image != "" {
		s.Image = profile.Spec.Image
	}
	if profile.Spec.ScratchMountPath != "" {
		s.ScratchMountPath = profile.Spec.ScratchMountPath
	}
	if profile.Spec.ScratchSizeLimit != "" {
		s.ScratchSizeLimit = profile.Spec.ScratchSizeLimit
	}
	if profile.Spec.IdleTimeout != "" {
		s.IdleTimeout = profile.Spec.IdleTimeout
	}
	if len(profile.Spec.Command) > 0 {
		s.Command = append([]string(nil), profile.Spec.Command...)
	}
}

// Validate checks that the spec can be turned into a schedulable pod.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("session name is required")
	}
	if errs := validation.IsDNS1123Label(s.Name); len(errs) > 0 {
		return fmt.Errorf("invalid session name %q: %s", s.Name, strings.Join(errs, "; "))
	}
	if s.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if s.Image == "" {
		return fmt.Errorf("image is required")
	}
	if s.GPUProduct == "" {
		return fmt.Errorf("gpu product is required")
	}
	if errs := validation.IsValidLabelValue(s.GPUProduct); len(errs) > 0 {
		return fmt.Errorf("invalid gpu product %q: %s", s.GPUProduct, strings.Join(errs, "; "))
	}
	if s.GPUCount < 1 {
		return fmt.Errorf("gpu count must be at least 1, got %d", s.GPUCount)
	}

	cpuRequest, err := resource.ParseQuantity(s.CPURequest)
	if err != nil {
		return fmt.Errorf("invalid cpu request %q: %w", s.CPURequest, err)
	}
	cpuLimit, err := resource.ParseQuantity(s.CPULimit)
	if err != nil {
		return fmt.Errorf("invalid cpu limit %q: %w", s.CPULimit, err)
	}
	if cpuRequest.Cmp(cpuLimit) > 0 {
		return fmt.Errorf("cpu request %s exceeds limit %s", s.CPURequest, s.CPULimit)
	}

	memoryRequest, err := resource.ParseQuantity(s.MemoryRequest)
	if err != nil {
		return fmt.Errorf("invalid memory request %q: %w", s.MemoryRequest, err)
	}
	memoryLimit, err := resource.ParseQuantity(s.MemoryLimit)
	if err != nil {
		return fmt.Errorf("invalid memory limit %q: %w", s.MemoryLimit, err)
	}
	if memoryRequest.Cmp(memoryLimit) > 0 {
		return fmt.Errorf("memory request %s exceeds limit %s", s.MemoryRequest, s.MemoryLimit)
	}

	if !strings.HasPrefix(s.ScratchMountPath, "/") {
		return fmt.Errorf("scratch mount path %q must be absolute", s.ScratchMountPath)
	}
	if s.ScratchSizeLimit != "" {
		if _, err := resource.ParseQuantity(s.ScratchSizeLimit); err != nil {
			return fmt.Errorf("invalid scratch size limit %q: %w", s.ScratchSizeLimit, err)
		}
	}
	if s.IdleTimeout != "" {
		if _, err := time.ParseDuration(s.IdleTimeout); err != nil {
			return fmt.Errorf("invalid idle timeout %q: %w", s.IdleTimeout, err)
		}
	}

	return nil
}

// SelectorLabels returns the labels shared by every session pod, used to
// list sessions without picking up unrelated workloads.
func SelectorLabels() map[string]string {
	return map[string]string{
		LabelApp:       AppName,
		LabelManagedBy: ManagerName,
	}
}
