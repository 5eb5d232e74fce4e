//go:build integration

package ledger

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// TestIntegration_LedgerLifecycle runs the full reserve/release cycle against
// a real MySQL instance.
//
// Run with: DIBS_LEDGER_DSN=dibs:pw@tcp(127.0.0.1:3306)/dibs go test -tags=integration ./pkg/ledger/
func TestIntegration_LedgerLifecycle(t *testing.T) {
	dsn := os.Getenv("DIBS_LEDGER_DSN")
	if dsn == "" {
		t.Skip("DIBS_LEDGER_DSN not set, skipping ledger integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	l, err := Open(dsn)
	if err != nil {
		t.Fatalf("Failed to open ledger: %v", err)
	}
	defer l.Close()

	if err := l.EnsureSchema(ctx); err != nil {
		t.Fatalf("Failed to ensure schema: %v", err)
	}

	session := fmt.Sprintf("dibs-ledger-test-%d", time.Now().UnixNano())
	reservation := Reservation{
		Session:    session,
		Namespace:  "default",
		Owner:      "ci",
		GPUProduct: "NVIDIA-GeForce-RTX-3090",
		GPUCount:   1,
	}

	if err := l.RecordReserve(ctx, reservation); err != nil {
		t.Fatalf("Failed to record reservation: %v", err)
	}

	active, err := l.Active(ctx)
	if err != nil {
		t.Fatalf("Failed to list active reservations: %v", err)
	}
	found := false
	for _, rec := range active {
		if rec.Session == session {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected session %s in active reservations", session)
	}

	if err := l.RecordRelease(ctx, "default", session, "test"); err != nil {
		t.Fatalf("Failed to record release: %v", err)
	}

	active, err = l.Active(ctx)
	if err != nil {
		t.Fatalf("Failed to list active reservations after release: %v", err)
	}
	for _, rec := range active {
		if rec.Session == session {
			t.Errorf("Session %s should no longer be active", session)
		}
	}
}
