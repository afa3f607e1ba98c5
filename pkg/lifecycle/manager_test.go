package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/fastpdi/dpp/pkg/log"
)

type recordingEmitter struct {
	transitions []string
}

func (r *recordingEmitter) OnStateChange(previous, current State, reason string) {
	r.transitions = append(r.transitions, previous.String()+"->"+current.String())
}

func TestManager_ValidTransitions(t *testing.T) {
	emitter := &recordingEmitter{}
	m := NewManager(log.NewNoopLogger(), emitter)

	if m.State() != StateStopped {
		t.Fatalf("initial state = %v, want Stopped", m.State())
	}
	if !m.CanStart() {
		t.Fatal("CanStart() = false for stopped manager")
	}

	steps := []struct {
		to     State
		reason string
	}{
		{StateStarting, "starting"},
		{StateRunning, "started"},
		{StateStopping, "stop requested"},
		{StateStopped, "stopped"},
	}
	for _, s := range steps {
		if err := m.TransitionTo(s.to, s.reason); err != nil {
			t.Fatalf("TransitionTo(%v) failed: %v", s.to, err)
		}
	}

	want := []string{
		"Stopped->Starting",
		"Starting->Running",
		"Running->Stopping",
		"Stopping->Stopped",
	}
	if len(emitter.transitions) != len(want) {
		t.Fatalf("got %d transitions, want %d", len(emitter.transitions), len(want))
	}
	for i, w := range want {
		if emitter.transitions[i] != w {
			t.Errorf("transition %d = %q, want %q", i, emitter.transitions[i], w)
		}
	}
}

func TestManager_InvalidTransitions(t *testing.T) {
	m := NewManager(log.NewNoopLogger(), nil)

	// Stopped can only go to Starting.
	if err := m.TransitionTo(StateRunning, "skip"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stopped->Running error = %v, want ErrNotRunning", err)
	}

	if err := m.TransitionTo(StateStarting, "starting"); err != nil {
		t.Fatal(err)
	}
	if err := m.TransitionTo(StateStopped, "bail"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Starting->Stopped error = %v, want ErrAlreadyRunning", err)
	}
}

func TestManager_CrashAndRestart(t *testing.T) {
	m := NewManager(log.NewNoopLogger(), nil)

	if err := m.TransitionTo(StateStarting, "starting"); err != nil {
		t.Fatal(err)
	}
	if err := m.TransitionTo(StateCrashed, "boom"); err != nil {
		t.Fatal(err)
	}
	if !m.CanStart() {
		t.Error("CanStart() = false after crash")
	}
	if err := m.TransitionTo(StateStarting, "restart"); err != nil {
		t.Errorf("Crashed->Starting failed: %v", err)
	}
}

func TestManager_WaitWithTimeout(t *testing.T) {
	m := NewManager(log.NewNoopLogger(), nil)

	m.AddWorker()
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.WorkerDone()
	}()
	if err := m.WaitWithTimeout(time.Second); err != nil {
		t.Errorf("WaitWithTimeout() = %v, want nil", err)
	}

	m.AddWorker()
	defer m.WorkerDone()
	if err := m.WaitWithTimeout(20 * time.Millisecond); !errors.Is(err, ErrShutdownTimeout) {
		t.Errorf("WaitWithTimeout() = %v, want ErrShutdownTimeout", err)
	}
}

func TestBackoff_DoublesUntilMax(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 500*time.Millisecond)

	if b.Current() != 100*time.Millisecond {
		t.Fatalf("initial = %v", b.Current())
	}

	// Advance without actually sleeping long: jitter keeps Sleep short here.
	b.Reset()
	got := []time.Duration{b.Current()}
	for i := 0; i < 4; i++ {
		b.current *= 2
		if b.current > b.max {
			b.current = b.max
		}
		got = append(got, b.Current())
	}

	want := []time.Duration{100, 200, 400, 500, 500}
	for i, w := range want {
		if got[i] != w*time.Millisecond {
			t.Errorf("step %d = %v, want %v", i, got[i], w*time.Millisecond)
		}
	}

	b.Reset()
	if b.Current() != 100*time.Millisecond {
		t.Errorf("Reset() did not restore initial: %v", b.Current())
	}
}
