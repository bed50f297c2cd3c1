package engine

import (
	"sync"
	"time"
)

// Phase describes where the supervised engine is in its lifecycle.
type Phase string

const (
	PhaseStopped    Phase = "stopped"
	PhaseStarting   Phase = "starting"
	PhaseReady      Phase = "ready"
	PhaseBusy       Phase = "busy"
	PhaseUnhealthy  Phase = "unhealthy"
	PhaseRestarting Phase = "restarting"
)

// Snapshot is a point-in-time copy of the engine's supervisory record.
type Snapshot struct {
	Phase               Phase
	PID                 int
	ConsecutiveFailures int
	RestartAttempts     int
	LastProbeAt         time.Time
	Fatal               bool
	TaskActive          bool
}

// State is the shared supervisory record for the single engine instance. The
// health monitor and the task worker both transition it, so every phase change
// is an atomic read-modify-write under the mutex. Exactly one State exists per
// daemon.
type State struct {
	mu                  sync.Mutex
	phase               Phase
	pid                 int
	consecutiveFailures int
	restartAttempts     int
	lastProbeAt         time.Time
	fatal               bool
	taskActive          bool
}

// NewState returns a State in the stopped phase.
func NewState() *State {
	return &State{phase: PhaseStopped}
}

// Snapshot returns a copy of the current record.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Phase:               s.phase,
		PID:                 s.pid,
		ConsecutiveFailures: s.consecutiveFailures,
		RestartAttempts:     s.restartAttempts,
		LastProbeAt:         s.lastProbeAt,
		Fatal:               s.fatal,
		TaskActive:          s.taskActive,
	}
}

// Phase returns the current lifecycle phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Fatal reports whether restart recovery has been exhausted.
func (s *State) Fatal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// MarkStarting records that a process spawn is underway.
func (s *State) MarkStarting(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseStarting
	s.pid = pid
}

// MarkReady records a successful startup. Consecutive failures reset because
// readiness was confirmed by a live probe.
func (s *State) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures = 0
	if s.taskActive {
		s.phase = PhaseBusy
		return
	}
	s.phase = PhaseReady
}

// MarkStopped records process termination.
func (s *State) MarkStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseStopped
	s.pid = 0
}

// MarkRestarting records that the monitor is cycling the process. The attempt
// number is retained for status reporting.
func (s *State) MarkRestarting(attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseRestarting
	s.restartAttempts = attempt
}

// MarkFatal records restart exhaustion. The engine stays stopped and no
// further automatic recovery happens until an operator intervenes.
func (s *State) MarkFatal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseStopped
	s.pid = 0
	s.fatal = true
}

// ResetRestarts clears the restart counter after a confirmed recovery.
func (s *State) ResetRestarts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restartAttempts = 0
}

// BeginTask attempts the ready-to-busy transition that admits a task to the
// engine. It fails unless the phase is exactly ready, which enforces the
// one-task-at-a-time contract.
func (s *State) BeginTask() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReady || s.taskActive {
		return false
	}
	s.phase = PhaseBusy
	s.taskActive = true
	return true
}

// EndTask releases the engine after a task's pipeline finishes. When the
// engine is still in the busy phase it returns to ready; a phase changed by
// the monitor mid-task (unhealthy, restarting, stopped) is left alone.
func (s *State) EndTask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskActive = false
	if s.phase == PhaseBusy {
		s.phase = PhaseReady
	}
}

// RecordProbeSuccess notes a successful liveness probe and returns the
// resulting phase. An unhealthy engine recovers to ready, or busy when a task
// is still holding it.
func (s *State) RecordProbeSuccess(now time.Time) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures = 0
	s.lastProbeAt = now
	if s.phase == PhaseUnhealthy {
		if s.taskActive {
			s.phase = PhaseBusy
		} else {
			s.phase = PhaseReady
		}
	}
	return s.phase
}

// RecordProbeFailure notes a failed liveness probe and returns the failure
// count and resulting phase. A ready or busy engine degrades to unhealthy.
func (s *State) RecordProbeFailure(now time.Time) (int, Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	s.lastProbeAt = now
	if s.phase == PhaseReady || s.phase == PhaseBusy {
		s.phase = PhaseUnhealthy
	}
	return s.consecutiveFailures, s.phase
}

// MarkUnhealthy degrades the phase outside the probe path, used when a task
// operation observes a transport failure before the next scheduled probe.
func (s *State) MarkUnhealthy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseReady || s.phase == PhaseBusy {
		s.phase = PhaseUnhealthy
	}
}
