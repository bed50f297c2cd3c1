package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"assetrip/internal/services"
)

// fakeController mimics the engine's lifecycle surface so the monitor can be
// exercised without a real process.
type fakeController struct {
	mu       sync.Mutex
	state    *State
	probeErr error
	startErr error
	starts   int
	stops    int
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.state.MarkReady()
	return nil
}

func (f *fakeController) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state.MarkStopped()
	return nil
}

func (f *fakeController) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeErr
}

func (f *fakeController) setProbeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeErr = err
}

func (f *fakeController) setStartErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

func (f *fakeController) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func testMonitorOptions() MonitorOptions {
	return MonitorOptions{
		ProbeInterval:    5 * time.Millisecond,
		ProbeTimeout:     5 * time.Millisecond,
		FailureThreshold: 1,
		MaxRestarts:      5,
		BackoffBase:      time.Millisecond,
		BackoffCap:       4 * time.Millisecond,
		ReadyPollEvery:   time.Millisecond,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestMonitorRestartExhaustion(t *testing.T) {
	state := NewState()
	state.MarkReady()
	fake := &fakeController{state: state}
	fake.setProbeErr(errors.New("connection refused"))
	fake.setStartErr(errors.New("spawn failed"))

	monitor := NewMonitor(fake, state, testMonitorOptions())
	monitor.Start(t.Context())
	defer monitor.Stop()

	waitFor(t, 5*time.Second, state.Fatal)

	if got := fake.startCount(); got != 5 {
		t.Fatalf("expected exactly 5 restart attempts, got %d", got)
	}
	snap := monitor.Status()
	if snap.Phase != PhaseStopped || !snap.Fatal {
		t.Fatalf("expected stopped+fatal after exhaustion, got %+v", snap)
	}

	// No further attempts once recovery is exhausted.
	time.Sleep(50 * time.Millisecond)
	if got := fake.startCount(); got != 5 {
		t.Fatalf("expected no attempts after exhaustion, got %d", got)
	}
}

func TestMonitorRecoversAfterProbeFailure(t *testing.T) {
	state := NewState()
	state.MarkReady()
	fake := &fakeController{state: state}
	fake.setProbeErr(errors.New("connection refused"))

	// The restart succeeds and clears the probe failure, as a real process
	// coming back would.
	monitor := NewMonitor(fake, state, testMonitorOptions())
	fakeRecover := func() {
		waitFor(t, 5*time.Second, func() bool { return fake.startCount() >= 1 })
		fake.setProbeErr(nil)
	}
	go fakeRecover()

	monitor.Start(t.Context())
	defer monitor.Stop()

	waitFor(t, 5*time.Second, func() bool { return state.Phase() == PhaseReady })

	snap := monitor.Status()
	if snap.Fatal {
		t.Fatal("recovered engine must not be fatal")
	}
	if snap.RestartAttempts != 0 {
		t.Fatalf("expected restart counter reset after recovery, got %d", snap.RestartAttempts)
	}
}

func TestMonitorRequestRestartCyclesEngine(t *testing.T) {
	state := NewState()
	state.MarkReady()
	fake := &fakeController{state: state}

	monitor := NewMonitor(fake, state, testMonitorOptions())
	monitor.Start(t.Context())
	defer monitor.Stop()

	monitor.RequestRestart()

	waitFor(t, 5*time.Second, func() bool { return fake.startCount() == 1 })
	waitFor(t, 5*time.Second, func() bool { return state.Phase() == PhaseReady })
}

func TestAwaitReadyAdmitsOneTaskAtATime(t *testing.T) {
	state := NewState()
	state.MarkReady()
	fake := &fakeController{state: state}
	monitor := NewMonitor(fake, state, testMonitorOptions())

	if err := monitor.AwaitReady(context.Background(), 50*time.Millisecond); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
	if state.Phase() != PhaseBusy {
		t.Fatalf("expected busy after admission, got %s", state.Phase())
	}

	err := monitor.AwaitReady(context.Background(), 20*time.Millisecond)
	if services.CodeOf(err) != services.CodeUnavailable {
		t.Fatalf("expected unavailable for second admission, got %v", err)
	}

	monitor.ReleaseTask()
	if err := monitor.AwaitReady(context.Background(), 50*time.Millisecond); err != nil {
		t.Fatalf("AwaitReady after release: %v", err)
	}
}

func TestAwaitReadyFailsWhenEngineStopped(t *testing.T) {
	state := NewState()
	fake := &fakeController{state: state}
	monitor := NewMonitor(fake, state, testMonitorOptions())

	start := time.Now()
	err := monitor.AwaitReady(context.Background(), 30*time.Millisecond)
	if services.CodeOf(err) != services.CodeUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("AwaitReady did not respect its timeout")
	}
}

func TestAwaitReadyFailsFastWhenFatal(t *testing.T) {
	state := NewState()
	state.MarkFatal()
	fake := &fakeController{state: state}
	monitor := NewMonitor(fake, state, testMonitorOptions())

	err := monitor.AwaitReady(context.Background(), time.Minute)
	if services.CodeOf(err) != services.CodeUnavailable {
		t.Fatalf("expected unavailable for fatal engine, got %v", err)
	}
}
