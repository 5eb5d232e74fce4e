package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/efortin/gpu-dibs/pkg/kubernetes"
	"github.com/efortin/gpu-dibs/pkg/ledger"
	"github.com/efortin/gpu-dibs/pkg/session"
)

// ReserveRequest is the body of POST /api/sessions. Everything except the
// name is optional: unset fields fall back to the profile, then to defaults.
type ReserveRequest struct {
	Name             string            `json:"name" binding:"required"`
	Owner            string            `json:"owner,omitempty"`
	Profile          string            `json:"profile,omitempty"`
	Image            string            `json:"image,omitempty"`
	GPUProduct       string            `json:"gpuProduct,omitempty"`
	GPUCount         int64             `json:"gpuCount,omitempty"`
	CPURequest       string            `json:"cpuRequest,omitempty"`
	CPULimit         string            `json:"cpuLimit,omitempty"`
	MemoryRequest    string            `json:"memoryRequest,omitempty"`
	MemoryLimit      string            `json:"memoryLimit,omitempty"`
	ScratchSizeLimit string            `json:"scratchSizeLimit,omitempty"`
	IdleTimeout      string            `json:"idleTimeout,omitempty"`
	Command          []string          `json:"command,omitempty"`
	Labels           map[string]string `json:"labels,omitempty"`
}

// SessionView is the API representation of a session pod
type SessionView struct {
	Name         string     `json:"name"`
	Namespace    string     `json:"namespace"`
	Phase        string     `json:"phase"`
	Node         string     `json:"node,omitempty"`
	Owner        string     `json:"owner,omitempty"`
	Profile      string     `json:"profile,omitempty"`
	GPUProduct   string     `json:"gpuProduct,omitempty"`
	GPUCount     int64      `json:"gpuCount"`
	Image        string     `json:"image,omitempty"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
	IdleTimeout  string     `json:"idleTimeout,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ProfileView is the API representation of a SessionProfile
type ProfileView struct {
	Name        string `json:"name"`
	GPUProduct  string `json:"gpuProduct,omitempty"`
	GPUCount    int64  `json:"gpuCount,omitempty"`
	Image       string `json:"image,omitempty"`
	IdleTimeout string `json:"idleTimeout,omitempty"`
}

// reserveHandler creates a new session pod
func (s *Server) reserveHandler(c *gin.Context) {
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	spec := session.DefaultSpec()
	spec.Name = req.Name
	spec.Namespace = s.sessions.Namespace()
	spec.Owner = req.Owner

	profileName := req.Profile
	if profileName == "" {
		profileName = s.config.DefaultProfile
	}
	if profileName != "" {
		profile, err := s.profiles.GetProfile(ctx, profileName)
		if err != nil {
			var notFound *kubernetes.ProfileNotFoundError
			if errors.As(err, &notFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to get profile: %v", err)})
			return
		}
		spec.ApplyProfile(profile)
	}

	applyOverrides(&spec, &req)

	if err := spec.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid session spec: %v", err)})
		return
	}

	profileLabel := spec.Profile
	if profileLabel == "" {
		profileLabel = "none"
	}

	start := time.Now()
	pod, err := s.sessions.Reserve(ctx, spec)
	if err != nil {
		s.recorder.RecordReserve(profileLabel, false, 0)
		if apierrors.IsAlreadyExists(err) {
			c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Session '%s' already exists", req.Name)})
			return
		}
		log.Printf("Failed to reserve session %s: %v", req.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to reserve session: %v", err)})
		return
	}

	s.recorder.RecordReserve(profileLabel, true, time.Since(start))
	s.recordLedgerReserve(ctx, pod, spec)

	c.JSON(http.StatusCreated, sessionView(pod))
}

// getHandler returns a single session
func (s *Server) getHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	pod, err := s.sessions.Get(ctx, c.Param("name"))
	if err != nil {
		var notFound *kubernetes.SessionNotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to get session: %v", err)})
		return
	}

	c.JSON(http.StatusOK, sessionView(pod))
}

// listHandler returns all sessions in the managed namespace
func (s *Server) listHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	pods, err := s.sessions.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to list sessions: %v", err)})
		return
	}

	s.recorder.UpdateActiveSessions(len(pods))

	views := make([]SessionView, 0, len(pods))
	for i := range pods {
		views = append(views, sessionView(&pods[i]))
	}

	c.JSON(http.StatusOK, gin.H{"sessions": views, "count": len(views)})
}

// releaseHandler deletes a session pod, freeing its GPU
func (s *Server) releaseHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	name := c.Param("name")
	if err := s.sessions.Release(ctx, name); err != nil {
		var notFound *kubernetes.SessionNotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to release session: %v", err)})
		return
	}

	s.recorder.RecordRelease("user")
	if s.ledger != nil {
		if err := s.ledger.RecordRelease(ctx, s.sessions.Namespace(), name, "user"); err != nil {
			log.Printf("Failed to record release in ledger: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Session '%s' released", name),
	})
}

// keepaliveHandler resets the idle clock on a session
func (s *Server) keepaliveHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stamp, err := s.sessions.Touch(ctx, c.Param("name"))
	if err != nil {
		var notFound *kubernetes.SessionNotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to refresh session: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"lastActivity": stamp.UTC().Format(time.RFC3339),
	})
}

// profilesHandler returns all SessionProfiles from the cluster
func (s *Server) profilesHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to list profiles: %v", err)})
		return
	}

	views := make([]ProfileView, 0, len(profiles))
	for _, profile := range profiles {
		views = append(views, ProfileView{
			Name:        profile.Name,
			GPUProduct:  profile.Spec.GPUProduct,
			GPUCount:    profile.Spec.GPUCount,
			Image:       profile.Spec.Image,
			IdleTimeout: profile.Spec.IdleTimeout,
		})
	}

	c.JSON(http.StatusOK, gin.H{"profiles": views, "count": len(views)})
}

// ledgerHandler returns the open reservations from the audit ledger
func (s *Server) ledgerHandler(c *gin.Context) {
	if s.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ledger not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	records, err := s.ledger.Active(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to read ledger: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reservations": records, "count": len(records)})
}

// applyOverrides copies the explicitly set request fields onto the spec.
// Request fields win over profile values.
func applyOverrides(spec *session.Spec, req *ReserveRequest) {
	if req.Image != "" {
		spec.Image = req.Image
	}
	if req.GPUProduct != "" {
		spec.GPUProduct = req.GPUProduct
	}
	if req.GPUCount > 0 {
		spec.GPUCount = req.GPUCount
	}
	if req.CPURequest != "" {
		spec.CPURequest = req.CPURequest
	}
	if req.CPULimit != "" {
		spec.CPULimit = req.CPULimit
	}
	if req.MemoryRequest != "" {
		spec.MemoryRequest = req.MemoryRequest
	}
	if req.MemoryLimit != "" {
		spec.MemoryLimit = req.MemoryLimit
	}
	if req.ScratchSizeLimit != "" {
		spec.ScratchSizeLimit = req.ScratchSizeLimit
	}
	if req.IdleTimeout != "" {
		spec.IdleTimeout = req.IdleTimeout
	}
	if len(req.Command) > 0 {
		spec.Command = append([]string(nil), req.Command...)
	}
	if len(req.Labels) > 0 {
		spec.ExtraLabels = req.Labels
	}
}

// recordLedgerReserve writes the reservation to the audit ledger, if one is
// configured. Ledger failures never fail the request.
func (s *Server) recordLedgerReserve(ctx context.Context, pod *corev1.Pod, spec session.Spec) {
	if s.ledger == nil {
		return
	}

	entry := ledger.Reservation{
		Session:    pod.Name,
		Namespace:  pod.Namespace,
		Owner:      spec.Owner,
		Profile:    spec.Profile,
		GPUProduct: spec.GPUProduct,
		GPUCount:   spec.GPUCount,
		NodeName:   pod.Spec.NodeName,
		ReservedAt: time.Now(),
	}
	if err := s.ledger.RecordReserve(ctx, entry); err != nil {
		log.Printf("Failed to record reservation in ledger: %v", err)
	}
}

// sessionView maps a pod to its API representation
func sessionView(pod *corev1.Pod) SessionView {
	view := SessionView{
		Name:        pod.Name,
		Namespace:   pod.Namespace,
		Phase:       string(pod.Status.Phase),
		Node:        pod.Spec.NodeName,
		Owner:       pod.Annotations[session.AnnotationOwner],
		Profile:     pod.Annotations[session.AnnotationProfile],
		GPUProduct:  session.GPUProductOf(pod),
		GPUCount:    session.GPUCountOf(pod),
		IdleTimeout: pod.Annotations[session.AnnotationIdleTimeout],
		CreatedAt:   pod.CreationTimestamp.Time,
	}
	if len(pod.Spec.Containers) > 0 {
		view.Image = pod.Spec.Containers[0].Image
	}
	if last, ok := session.LastActivity(pod); ok {
		view.LastActivity = &last
	}
	return view
}
