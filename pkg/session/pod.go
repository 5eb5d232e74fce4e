package session

import (
	"time"

	"github.com/pborman/uuid"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// BuildPod renders the spec into a pod manifest. The pod requires a node
// carrying the requested GPU product label, asks for the GPU with
// request == limit as the device plugin expects, and idles on its
// placeholder command until the owner execs in.
func BuildPod(s Spec) (*corev1.Pod, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	gpu := *resource.NewQuantity(s.GPUCount, resource.DecimalSI)

	labels := map[string]string{}
	for k, v := range s.ExtraLabels {
		labels[k] = v
	}
	labels[LabelApp] = AppName
	labels[LabelManagedBy] = ManagerName
	labels[LabelSessionID] = uuid.New()

	annotations := map[string]string{
		AnnotationLastActivity: time.Now().UTC().Format(time.RFC3339),
	}
	if s.Owner != "" {
		annotations[AnnotationOwner] = s.Owner
	}
	if s.Profile != "" {
		annotations[AnnotationProfile] = s.Profile
	}
	if s.IdleTimeout != "" {
		annotations[AnnotationIdleTimeout] = s.IdleTimeout
	}

	command := s.Command
	if len(command) == 0 {
		command = append([]string(nil), DefaultCommand...)
	}

	scratch := corev1.Volume{
		Name: ScratchVolumeName,
		VolumeSource: corev1.VolumeSource{
			EmptyDir: &corev1.EmptyDirVolumeSource{},
		},
	}
	if s.ScratchSizeLimit != "" {
		sizeLimit := resource.MustParse(s.ScratchSizeLimit)
		scratch.EmptyDir.SizeLimit = &sizeLimit
	}

	// Idle pods hold nothing worth draining, kill them fast.
	gracePeriod := int64(0)

	pod := &corev1.Pod{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Pod",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:        s.Name,
			Namespace:   s.Namespace,
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: corev1.PodSpec{
			RestartPolicy:                 corev1.RestartPolicyNever,
			TerminationGracePeriodSeconds: &gracePeriod,
			Affinity: &corev1.Affinity{
				NodeAffinity: &corev1.NodeAffinity{
					RequiredDuringSchedulingIgnoredDuringExecution: &corev1.NodeSelector{
						NodeSelectorTerms: []corev1.NodeSelectorTerm{
							{
								MatchExpressions: []corev1.NodeSelectorRequirement{
									{
										Key:      GPUProductLabel,
										Operator: corev1.NodeSelectorOpIn,
										Values:   []string{s.GPUProduct},
									},
								},
							},
						},
					},
				},
			},
			Containers: []corev1.Container{
				{
					Name:    ContainerName,
					Image:   s.Image,
					Command: command,
					Resources: corev1.ResourceRequirements{
						Requests: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse(s.CPURequest),
							corev1.ResourceMemory: resource.MustParse(s.MemoryRequest),
							ResourceGPU:           gpu,
						},
						Limits: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse(s.CPULimit),
							corev1.ResourceMemory: resource.MustParse(s.MemoryLimit),
							ResourceGPU:           gpu,
						},
					},
					VolumeMounts: []corev1.VolumeMount{
						{
							Name:      ScratchVolumeName,
							MountPath: s.ScratchMountPath,
						},
					},
				},
			},
			Volumes: []corev1.Volume{scratch},
		},
	}

	return pod, nil
}

// LastActivity reads the keepalive timestamp off a session pod.
func LastActivity(pod *corev1.Pod) (time.Time, bool) {
	raw, ok := pod.Annotations[AnnotationLastActivity]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IdleTimeoutOf reads the per-session idle timeout override, if any.
func IdleTimeoutOf(pod *corev1.Pod) (time.Duration, bool) {
	raw, ok := pod.Annotations[AnnotationIdleTimeout]
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return d, true
}

// GPUProductOf reads the GPU product a session pod is pinned to from its
// required node affinity.
func GPUProductOf(pod *corev1.Pod) string {
	if pod.Spec.Affinity == nil || pod.Spec.Affinity.NodeAffinity == nil ||
		pod.Spec.Affinity.NodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution == nil {
		return ""
	}
	for _, term := range pod.Spec.Affinity.NodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution.NodeSelectorTerms {
		for _, req := range term.MatchExpressions {
			if req.Key == GPUProductLabel && len(req.Values) > 0 {
				return req.Values[0]
			}
		}
	}
	return ""
}

// GPUCountOf sums the GPUs requested across a session pod's containers.
func GPUCountOf(pod *corev1.Pod) int64 {
	var total int64
	for _, container := range pod.Spec.Containers {
		if quantity, ok := container.Resources.Limits[ResourceGPU]; ok {
			if n, ok := quantity.AsInt64(); ok {
				total += n
			}
		}
	}
	return total
}
