package engine

import (
	"testing"
	"time"
)

func TestBeginTaskRequiresReady(t *testing.T) {
	state := NewState()

	if state.BeginTask() {
		t.Fatal("stopped engine should not admit a task")
	}

	state.MarkReady()
	if !state.BeginTask() {
		t.Fatal("ready engine should admit a task")
	}
	if state.Phase() != PhaseBusy {
		t.Fatalf("expected busy after admission, got %s", state.Phase())
	}

	// One task at a time.
	if state.BeginTask() {
		t.Fatal("busy engine must not admit a second task")
	}

	state.EndTask()
	if state.Phase() != PhaseReady {
		t.Fatalf("expected ready after release, got %s", state.Phase())
	}
	if !state.BeginTask() {
		t.Fatal("released engine should admit the next task")
	}
}

func TestEndTaskPreservesMonitorTransitions(t *testing.T) {
	state := NewState()
	state.MarkReady()
	if !state.BeginTask() {
		t.Fatal("admission failed")
	}

	// Monitor degrades the phase while the task is still in flight.
	state.RecordProbeFailure(time.Now())
	state.EndTask()

	if state.Phase() != PhaseUnhealthy {
		t.Fatalf("release must not mask an unhealthy phase, got %s", state.Phase())
	}
}

func TestProbeTransitions(t *testing.T) {
	state := NewState()
	state.MarkReady()

	failures, phase := state.RecordProbeFailure(time.Now())
	if failures != 1 || phase != PhaseUnhealthy {
		t.Fatalf("expected 1 failure and unhealthy, got %d/%s", failures, phase)
	}
	failures, _ = state.RecordProbeFailure(time.Now())
	if failures != 2 {
		t.Fatalf("expected failure count to accumulate, got %d", failures)
	}

	phase = state.RecordProbeSuccess(time.Now())
	if phase != PhaseReady {
		t.Fatalf("expected recovery to ready, got %s", phase)
	}
	if snap := state.Snapshot(); snap.ConsecutiveFailures != 0 {
		t.Fatalf("expected failures reset, got %d", snap.ConsecutiveFailures)
	}
}

func TestProbeSuccessRestoresBusyWhenTaskActive(t *testing.T) {
	state := NewState()
	state.MarkReady()
	if !state.BeginTask() {
		t.Fatal("admission failed")
	}

	state.RecordProbeFailure(time.Now())
	if phase := state.RecordProbeSuccess(time.Now()); phase != PhaseBusy {
		t.Fatalf("expected busy restored for active task, got %s", phase)
	}
}

func TestMarkFatal(t *testing.T) {
	state := NewState()
	state.MarkReady()
	state.MarkFatal()

	if !state.Fatal() {
		t.Fatal("expected fatal flag set")
	}
	if state.Phase() != PhaseStopped {
		t.Fatalf("expected stopped phase, got %s", state.Phase())
	}
	if state.BeginTask() {
		t.Fatal("fatal engine must not admit tasks")
	}
}

func TestMarkReadyHonorsActiveTask(t *testing.T) {
	state := NewState()
	state.MarkReady()
	if !state.BeginTask() {
		t.Fatal("admission failed")
	}

	// A restart completing mid-task lands in busy, not ready.
	state.MarkRestarting(1)
	state.MarkReady()
	if state.Phase() != PhaseBusy {
		t.Fatalf("expected busy for active task, got %s", state.Phase())
	}
}
