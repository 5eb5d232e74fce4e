package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/efortin/gpu-dibs/pkg/session"
)

// startReaper runs the idle sweep on every tick until the process exits.
func (s *Server) startReaper() {
	ticker := time.NewTicker(s.config.GetReapInterval())
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := s.reapIdle(ctx); err != nil {
			log.Printf("❌ Reaper sweep failed: %v", err)
			s.recorder.RecordReapRun(false)
		} else {
			s.recorder.RecordReapRun(true)
		}
		cancel()
	}
}

// reapIdle releases every session whose idle time exceeds its timeout.
// Sessions without a per-pod timeout use the server default; sessions
// without a last-activity annotation are left alone.
func (s *Server) reapIdle(ctx context.Context) error {
	pods, err := s.sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	s.recorder.UpdateActiveSessions(len(pods))

	for i := range pods {
		pod := &pods[i]

		last, ok := session.LastActivity(pod)
		if !ok {
			continue
		}

		timeout, ok := session.IdleTimeoutOf(pod)
		if !ok {
			timeout = s.config.GetIdleTimeout()
		}
		if timeout <= 0 {
			continue
		}

		idle := time.Since(last)
		if idle <= timeout {
			continue
		}

		log.Printf("💤 Session %s/%s idle for %v, releasing...", pod.Namespace, pod.Name, idle.Round(time.Second))
		if err := s.sessions.Release(ctx, pod.Name); err != nil {
			log.Printf("❌ Failed to release idle session %s: %v", pod.Name, err)
			continue
		}

		s.recorder.RecordRelease("idle-timeout")
		if s.ledger != nil {
			if err := s.ledger.RecordRelease(ctx, pod.Namespace, pod.Name, "idle-timeout"); err != nil {
				log.Printf("Failed to record release in ledger: %v", err)
			}
		}
	}

	return nil
}
