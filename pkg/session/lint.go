package session

import (
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/validation"
)

// Problem is a single lint finding anchored to the manifest field that
// caused it.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	return p.Field + ": " + p.Message
}

// Lint checks a pod manifest against the rules a session pod must satisfy
// before submission: required identity fields, requests within limits, a
// whole positive GPU count with request equal to limit, mounts backed by
// declared volumes, and node affinity restricted to the set-based
// operators the scheduler accepts.
func Lint(pod *corev1.Pod) []Problem {
	var problems []Problem
	add := func(field, format string, args ...interface{}) {
		problems = append(problems, Problem{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch pod.APIVersion {
	case "":
		add("apiVersion", "apiVersion is required")
	case "v1":
	default:
		add("apiVersion", "expected v1, got %q", pod.APIVersion)
	}
	switch pod.Kind {
	case "":
		add("kind", "kind is required")
	case "Pod":
	default:
		add("kind", "expected Pod, got %q", pod.Kind)
	}

	if pod.Name == "" {
		add("metadata.name", "name is required")
	} else if errs := validation.IsDNS1123Subdomain(pod.Name); len(errs) > 0 {
		add("metadata.name", "%s", strings.Join(errs, "; "))
	}

	volumeNames := map[string]bool{}
	for i, volume := range pod.Spec.Volumes {
		if volumeNames[volume.Name] {
			add(fmt.Sprintf("spec.volumes[%d].name", i), "duplicate volume name %q", volume.Name)
		}
		volumeNames[volume.Name] = true
	}

	if len(pod.Spec.Containers) == 0 {
		add("spec.containers", "at least one container is required")
	}
	containerNames := map[string]bool{}
	for i, container := range pod.Spec.Containers {
		base := fmt.Sprintf("spec.containers[%d]", i)
		if container.Name == "" {
			add(base+".name", "container name is required")
		} else if containerNames[container.Name] {
			add(base+".name", "duplicate container name %q", container.Name)
		}
		containerNames[container.Name] = true
		if container.Image == "" {
			add(base+".image", "container image is required")
		}
		problems = append(problems, lintResources(base+".resources", container.Resources)...)
		problems = append(problems, lintVolumeMounts(base+".volumeMounts", container.VolumeMounts, volumeNames)...)
	}
	for i, container := range pod.Spec.InitContainers {
		base := fmt.Sprintf("spec.initContainers[%d]", i)
		if container.Name == "" {
			add(base+".name", "container name is required")
		}
		if container.Image == "" {
			add(base+".image", "container image is required")
		}
		problems = append(problems, lintResources(base+".resources", container.Resources)...)
		problems = append(problems, lintVolumeMounts(base+".volumeMounts", container.VolumeMounts, volumeNames)...)
	}

	problems = append(problems, lintNodeAffinity(pod.Spec.Affinity)...)

	return problems
}

func lintResources(base string, resources corev1.ResourceRequirements) []Problem {
	var problems []Problem
	add := func(field, format string, args ...interface{}) {
		problems = append(problems, Problem{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for name, request := range resources.Requests {
		limit, ok := resources.Limits[name]
		if !ok {
			continue
		}
		if request.Cmp(limit) > 0 {
			add(fmt.Sprintf("%s.requests[%s]", base, name), "request %s exceeds limit %s", request.String(), limit.String())
		}
	}

	// The GPU is an extended resource: the device plugin only hands out
	// whole devices, and the scheduler requires request == limit.
	request, hasRequest := resources.Requests[ResourceGPU]
	limit, hasLimit := resources.Limits[ResourceGPU]
	if hasRequest != hasLimit {
		add(fmt.Sprintf("%s.limits[%s]", base, ResourceGPU), "gpu request and limit must both be set")
	}
	if hasRequest && hasLimit && request.Cmp(limit) != 0 {
		add(fmt.Sprintf("%s.requests[%s]", base, ResourceGPU), "gpu request %s must equal limit %s", request.String(), limit.String())
	}
	if hasRequest || hasLimit {
		quantity, field := limit, fmt.Sprintf("%s.limits[%s]", base, ResourceGPU)
		if hasRequest {
			quantity, field = request, fmt.Sprintf("%s.requests[%s]", base, ResourceGPU)
		}
		if quantity.MilliValue()%1000 != 0 {
			add(field, "gpu count must be a whole number, got %s", quantity.String())
		} else if quantity.Sign() <= 0 {
			add(field, "gpu count must be positive, got %s", quantity.String())
		}
	}

	return problems
}

func lintVolumeMounts(base string, mounts []corev1.VolumeMount, volumeNames map[string]bool) []Problem {
	var problems []Problem
	for i, mount := range mounts {
		if !volumeNames[mount.Name] {
			problems = append(problems, Problem{
				Field:   fmt.Sprintf("%s[%d].name", base, i),
				Message: fmt.Sprintf("mount references undefined volume %q", mount.Name),
			})
		}
	}
	return problems
}

func lintNodeAffinity(affinity *corev1.Affinity) []Problem {
	if affinity == nil || affinity.NodeAffinity == nil {
		return nil
	}

	var problems []Problem
	nodeAffinity := affinity.NodeAffinity
	if required := nodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution; required != nil {
		for i, term := range required.NodeSelectorTerms {
			base := fmt.Sprintf("spec.affinity.nodeAffinity.requiredDuringSchedulingIgnoredDuringExecution.nodeSelectorTerms[%d]", i)
			problems = append(problems, lintSelectorTerm(base, term)...)
		}
	}
	for i, preferred := range nodeAffinity.PreferredDuringSchedulingIgnoredDuringExecution {
		base := fmt.Sprintf("spec.affinity.nodeAffinity.preferredDuringSchedulingIgnoredDuringExecution[%d].preference", i)
		problems = append(problems, lintSelectorTerm(base, preferred.Preference)...)
	}
	return problems
}

func lintSelectorTerm(base string, term corev1.NodeSelectorTerm) []Problem {
	var problems []Problem
	for i, requirement := range term.MatchExpressions {
		field := fmt.Sprintf("%s.matchExpressions[%d]", base, i)
		if errs := validation.IsQualifiedName(requirement.Key); len(errs) > 0 {
			problems = append(problems, Problem{Field: field + ".key", Message: strings.Join(errs, "; ")})
		}
		problems = append(problems, lintSelectorRequirement(field, requirement)...)
	}
	for i, requirement := range term.MatchFields {
		field := fmt.Sprintf("%s.matchFields[%d]", base, i)
		problems = append(problems, lintSelectorRequirement(field, requirement)...)
	}
	return problems
}

func lintSelectorRequirement(field string, requirement corev1.NodeSelectorRequirement) []Problem {
	var problems []Problem
	switch requirement.Operator {
	case corev1.NodeSelectorOpIn, corev1.NodeSelectorOpNotIn:
		if len(requirement.Values) == 0 {
			problems = append(problems, Problem{
				Field:   field + ".values",
				Message: fmt.Sprintf("operator %s requires at least one value", requirement.Operator),
			})
		}
	case corev1.NodeSelectorOpExists, corev1.NodeSelectorOpDoesNotExist:
		if len(requirement.Values) > 0 {
			problems = append(problems, Problem{
				Field:   field + ".values",
				Message: fmt.Sprintf("operator %s must not have values", requirement.Operator),
			})
		}
	default:
		problems = append(problems, Problem{
			Field:   field + ".operator",
			Message: fmt.Sprintf("unsupported operator %q, want one of In, NotIn, Exists, DoesNotExist", requirement.Operator),
		})
	}
	return problems
}
