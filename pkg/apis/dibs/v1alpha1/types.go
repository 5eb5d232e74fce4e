package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// +genclient
// +genclient:nonNamespaced
// +k8s:deepcopy-gen:interfaces=k8s.io/apimachinery/pkg/runtime.Object

// SessionProfile is a specification for a reusable GPU session shape
type SessionProfile struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   SessionProfileSpec   `json:"spec"`
	Status SessionProfileStatus `json:"status,omitempty"`
}

// SessionProfileSpec defines the desired state of SessionProfile
type SessionProfileSpec struct {
	// GPU Selection
	GPUProduct string `json:"gpuProduct"`
	GPUCount   int64  `json:"gpuCount,omitempty"`

	// Compute Resources
	CPURequest    string `json:"cpuRequest,omitempty"`
	CPULimit      string `json:"cpuLimit,omitempty"`
	MemoryRequest string `json:"memoryRequest,omitempty"`
	MemoryLimit   string `json:"memoryLimit,omitempty"`

	// Workload Configuration
	Image   string   `json:"image,omitempty"`
	Command []string `json:"command,omitempty"`

	// Scratch Volume
	ScratchMountPath string `json:"scratchMountPath,omitempty"`
	ScratchSizeLimit string `json:"scratchSizeLimit,omitempty"`

	// Lifecycle
	IdleTimeout string `json:"idleTimeout,omitempty"`
}

// SessionProfileStatus defines the observed state of SessionProfile
type SessionProfileStatus struct {
	Phase       string      `json:"phase,omitempty"`
	LastUpdated metav1.Time `json:"lastUpdated,omitempty"`
	Message     string      `json:"message,omitempty"`
}

// +k8s:deepcopy-gen:interfaces=k8s.io/apimachinery/pkg/runtime.Object

// SessionProfileList is a list of SessionProfile resources
type SessionProfileList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata"`

	Items []SessionProfile `json:"items"`
}
