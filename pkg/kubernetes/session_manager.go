package kubernetes

import (
	"context"
	"fmt"
	"log"
	"time"

	corev1 "k8s.io/api/core/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"

	"github.com/efortin/gpu-dibs/pkg/session"
)

// SessionNotFoundError is returned when no session pod with the given
// name exists in the managed namespace.
type SessionNotFoundError struct {
	Name string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session '%s' not found", e.Name)
}

// SessionManager handles the pod lifecycle of GPU sessions in one namespace.
type SessionManager struct {
	clientset kubernetes.Interface
	namespace string
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(clientset kubernetes.Interface, namespace string) *SessionManager {
	if namespace == "" {
		namespace = session.DefaultNamespace
	}
	return &SessionManager{
		clientset: clientset,
		namespace: namespace,
	}
}

// Namespace returns the namespace sessions are managed in.
func (m *SessionManager) Namespace() string {
	return m.namespace
}

// Reserve builds the session pod and submits it to the cluster.
func (m *SessionManager) Reserve(ctx context.Context, spec session.Spec) (*corev1.Pod, error) {
	if spec.Namespace == "" || spec.Namespace == session.DefaultNamespace {
		spec.Namespace = m.namespace
	}
	if spec.Namespace != m.namespace {
		return nil, fmt.Errorf("session namespace %q does not match managed namespace %q", spec.Namespace, m.namespace)
	}

	pod, err := session.BuildPod(spec)
	if err != nil {
		return nil, err
	}

	created, err := m.clientset.CoreV1().Pods(m.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		if errors.IsAlreadyExists(err) {
			return nil, fmt.Errorf("session %q already exists: %w", spec.Name, err)
		}
		return nil, fmt.Errorf("failed to create session pod: %w", err)
	}

	log.Printf("✅ Reserved session %s/%s (%d x %s)", m.namespace, created.Name, spec.GPUCount, spec.GPUProduct)
	return created, nil
}

// Get returns the session pod by name. Pods in the namespace that were
// not created by gpu-dibs are invisible here.
func (m *SessionManager) Get(ctx context.Context, name string) (*corev1.Pod, error) {
	pod, err := m.clientset.CoreV1().Pods(m.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, &SessionNotFoundError{Name: name}
		}
		return nil, fmt.Errorf("failed to get session %q: %w", name, err)
	}
	if pod.Labels[session.LabelManagedBy] != session.ManagerName {
		return nil, &SessionNotFoundError{Name: name}
	}
	return pod, nil
}

// Exists reports whether a session pod with the given name exists.
func (m *SessionManager) Exists(ctx context.Context, name string) (bool, error) {
	_, err := m.Get(ctx, name)
	if err != nil {
		if _, ok := err.(*SessionNotFoundError); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Phase returns the pod phase of a session.
func (m *SessionManager) Phase(ctx context.Context, name string) (corev1.PodPhase, error) {
	pod, err := m.Get(ctx, name)
	if err != nil {
		return "", err
	}
	return pod.Status.Phase, nil
}

// List returns all session pods in the managed namespace.
func (m *SessionManager) List(ctx context.Context) ([]corev1.Pod, error) {
	selector := labels.SelectorFromSet(labels.Set(session.SelectorLabels())).String()
	list, err := m.clientset.CoreV1().Pods(m.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return list.Items, nil
}

// Release deletes the session pod, freeing its GPU.
func (m *SessionManager) Release(ctx context.Context, name string) error {
	if _, err := m.Get(ctx, name); err != nil {
		return err
	}

	err := m.clientset.CoreV1().Pods(m.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !errors.IsNotFound(err) {
		return fmt.Errorf("failed to delete session pod %q: %w", name, err)
	}

	log.Printf("🔓 Released session %s/%s", m.namespace, name)
	return nil
}

// Touch bumps the last-activity annotation, resetting the idle clock.
func (m *SessionManager) Touch(ctx context.Context, name string) (time.Time, error) {
	now := time.Now().UTC()
	patch := fmt.Sprintf(`{"metadata":{"annotations":{%q:%q}}}`,
		session.AnnotationLastActivity, now.Format(time.RFC3339))

	_, err := m.clientset.CoreV1().Pods(m.namespace).Patch(ctx, name, types.MergePatchType, []byte(patch), metav1.PatchOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return time.Time{}, &SessionNotFoundError{Name: name}
		}
		return time.Time{}, fmt.Errorf("failed to record activity on session %q: %w", name, err)
	}
	return now, nil
}

// WaitReady polls until the session pod is running. It fails fast when
// the pod lands in a terminal phase instead of burning the whole timeout.
func (m *SessionManager) WaitReady(ctx context.Context, name string, timeout time.Duration) (*corev1.Pod, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Printf("⏳ Waiting for session %s/%s to start...", m.namespace, name)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		pod, err := m.Get(ctx, name)
		if err == nil {
			switch pod.Status.Phase {
			case corev1.PodRunning:
				log.Printf("✅ Session %s/%s is running on node %s", m.namespace, name, pod.Spec.NodeName)
				return pod, nil
			case corev1.PodFailed, corev1.PodSucceeded:
				return nil, fmt.Errorf("session %q ended in phase %s before becoming ready", name, pod.Status.Phase)
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for session %q to start: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// VerifyPodSpec compares a live session against the pod its spec would
// build today and returns a human readable list of drifted fields.
func (m *SessionManager) VerifyPodSpec(ctx context.Context, name string, spec session.Spec) ([]string, error) {
	live, err := m.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	spec.Name = name
	if spec.Namespace == "" {
		spec.Namespace = m.namespace
	}
	want, err := session.BuildPod(spec)
	if err != nil {
		return nil, err
	}

	var drift []string
	if len(live.Spec.Containers) != len(want.Spec.Containers) {
		drift = append(drift, fmt.Sprintf("container count: have %d, want %d", len(live.Spec.Containers), len(want.Spec.Containers)))
		return drift, nil
	}

	liveContainer := live.Spec.Containers[0]
	wantContainer := want.Spec.Containers[0]
	if liveContainer.Image != wantContainer.Image {
		drift = append(drift, fmt.Sprintf("image: have %s, want %s", liveContainer.Image, wantContainer.Image))
	}
	if !apiequality.Semantic.DeepEqual(liveContainer.Command, wantContainer.Command) {
		drift = append(drift, fmt.Sprintf("command: have %v, want %v", liveContainer.Command, wantContainer.Command))
	}
	if !apiequality.Semantic.DeepEqual(liveContainer.Resources, wantContainer.Resources) {
		drift = append(drift, "resources differ from the session spec")
	}
	if !apiequality.Semantic.DeepEqual(live.Spec.Affinity, want.Spec.Affinity) {
		drift = append(drift, "node affinity differs from the session spec")
	}
	if !apiequality.Semantic.DeepEqual(liveContainer.VolumeMounts, wantContainer.VolumeMounts) {
		drift = append(drift, "volume mounts differ from the session spec")
	}

	return drift, nil
}
