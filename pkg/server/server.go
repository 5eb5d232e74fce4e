package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	corev1 "k8s.io/api/core/v1"

	"github.com/efortin/gpu-dibs/pkg/apis/dibs/v1alpha1"
	"github.com/efortin/gpu-dibs/pkg/ledger"
	"github.com/efortin/gpu-dibs/pkg/session"
	"github.com/efortin/gpu-dibs/pkg/stats"
)

// SessionOps defines the session operations the server needs
type SessionOps interface {
	Reserve(ctx context.Context, spec session.Spec) (*corev1.Pod, error)
	Get(ctx context.Context, name string) (*corev1.Pod, error)
	List(ctx context.Context) ([]corev1.Pod, error)
	Release(ctx context.Context, name string) error
	Touch(ctx context.Context, name string) (time.Time, error)
	Namespace() string
}

// ProfileOps defines the profile lookups the server needs
type ProfileOps interface {
	GetProfile(ctx context.Context, name string) (*v1alpha1.SessionProfile, error)
	ListProfiles(ctx context.Context) ([]*v1alpha1.SessionProfile, error)
}

// LedgerOps defines the audit trail operations the server needs
type LedgerOps interface {
	RecordReserve(ctx context.Context, r ledger.Reservation) error
	RecordRelease(ctx context.Context, namespace, session, reason string) error
	Active(ctx context.Context) ([]ledger.Record, error)
}

// Server handles the reservation API and the idle reaper
type Server struct {
	config   *Config
	sessions SessionOps
	profiles ProfileOps
	ledger   LedgerOps
	recorder *stats.MetricsRecorder
	gpuStats *stats.GinGPUStatsHandler
}

// NewServer creates a new reservation server
func NewServer(config *Config, sessions SessionOps, profiles ProfileOps, auditLog LedgerOps) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Server{
		config:   config,
		sessions: sessions,
		profiles: profiles,
		ledger:   auditLog,
		recorder: stats.NewMetricsRecorder(),
		gpuStats: stats.NewGinGPUStatsHandler(),
	}, nil
}

// Router builds the Gin engine with all routes mounted
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.metricsMiddleware())

	router.GET("/healthz", s.healthHandler)
	router.GET("/readyz", s.healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/gpu/stats", s.gpuStats.Handler)

	api := router.Group("/api")
	{
		api.POST("/sessions", s.reserveHandler)
		api.GET("/sessions", s.listHandler)
		api.GET("/sessions/:name", s.getHandler)
		api.DELETE("/sessions/:name", s.releaseHandler)
		api.POST("/sessions/:name/keepalive", s.keepaliveHandler)
		api.GET("/profiles", s.profilesHandler)
		api.GET("/ledger", s.ledgerHandler)
	}

	return router
}

// Start launches the idle reaper and serves the API
func (s *Server) Start() error {
	go s.startReaper()

	log.Printf("🚀 Starting gpu-dibs server on :%s", s.config.Port)
	log.Printf("   Namespace: %s", s.config.Namespace)
	log.Printf("   Idle timeout: %s (reap every %s)", s.config.IdleTimeout, s.config.ReapInterval)
	if s.config.LedgerDSN != "" {
		log.Printf("   Ledger: %s", ledger.RedactDSN(s.config.LedgerDSN))
	}

	return s.Router().Run(":" + s.config.Port)
}

// Close stops the metrics recorder and releases NVML
func (s *Server) Close() {
	s.recorder.Stop()
	if err := s.gpuStats.Shutdown(); err != nil {
		log.Printf("Failed to shut down GPU stats: %v", err)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// metricsMiddleware records request metrics and tracks API activity.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Route template keeps the path label cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		s.recorder.RecordRequest(
			c.Request.Method,
			path,
			c.Writer.Status(),
			time.Since(start),
			c.Request.ContentLength,
			int64(c.Writer.Size()),
		)

		switch path {
		case "/metrics", "/healthz", "/readyz":
		default:
			s.recorder.UpdateActivity()
		}
	}
}
