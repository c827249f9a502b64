package statusapi

import (
	"testing"

	"github.com/carnegie-technologies/cqlmigrate/internal/orchestrator"
)

func TestReporterPhaseUpdatesSnapshot(t *testing.T) {
	r := NewReporter()
	r.Phase(orchestrator.StateLocking)

	snap := r.Snapshot()
	if snap.Phase != "LOCKING" {
		t.Errorf("Phase = %q, want LOCKING", snap.Phase)
	}
}

func TestReporterLockUpdatesSnapshot(t *testing.T) {
	r := NewReporter()
	r.Lock(true, "client-1")

	snap := r.Snapshot()
	if !snap.LockHeld || snap.LockClient != "client-1" {
		t.Errorf("snapshot = %+v, want lock held by client-1", snap)
	}
}

func TestReporterRoundAccumulatesPerServiceProgress(t *testing.T) {
	r := NewReporter()
	r.Round(1, []string{"svcA", "svcB"})
	r.Round(2, []string{"svcB"})

	snap := r.Snapshot()
	if snap.Round != 2 {
		t.Errorf("Round = %d, want 2", snap.Round)
	}
	if snap.ServiceProgress["svcA"] != 1 {
		t.Errorf("svcA progress = %d, want 1", snap.ServiceProgress["svcA"])
	}
	if snap.ServiceProgress["svcB"] != 2 {
		t.Errorf("svcB progress = %d, want 2", snap.ServiceProgress["svcB"])
	}
}

func TestNewReporterStartsAtStartPhase(t *testing.T) {
	r := NewReporter()
	snap := r.Snapshot()
	if snap.Phase != "START" {
		t.Errorf("initial Phase = %q, want START", snap.Phase)
	}
	if snap.LockHeld {
		t.Errorf("initial LockHeld = true, want false")
	}
}
