package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/engine"
	"github.com/dennisdiepolder/pbxetl/internal/history"
	"github.com/dennisdiepolder/pbxetl/internal/period"
	"github.com/dennisdiepolder/pbxetl/internal/types"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

type fakeRunner struct {
	mu      sync.Mutex
	runs    int
	running bool
	err     error
	fired   chan struct{}
}

func (r *fakeRunner) Run(context.Context) (types.Outcome, error) {
	r.mu.Lock()
	r.runs++
	err := r.err
	r.mu.Unlock()
	if r.fired != nil {
		r.fired <- struct{}{}
	}
	if err != nil {
		return types.Outcome{}, err
	}
	return types.Outcome{ID: "run", Success: true}, nil
}

func (r *fakeRunner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *fakeRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func newTestScheduler(r *fakeRunner) *Scheduler {
	ledger := history.NewLedger(&history.MemStore{}, testLogger())
	return New(r, ledger, testLogger())
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		clock   string
		hour    int
		minute  int
		wantErr bool
	}{
		{"00:00", 0, 0, false},
		{"23:59", 23, 59, false},
		{"09:30", 9, 30, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"12", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.clock, func(t *testing.T) {
			h, m, err := parseClock(tt.clock)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseClock(%q) error = %v, wantErr %v", tt.clock, err, tt.wantErr)
			}
			if err == nil && (h != tt.hour || m != tt.minute) {
				t.Errorf("parseClock(%q) = %d:%d, want %d:%d", tt.clock, h, m, tt.hour, tt.minute)
			}
		})
	}
}

func TestStartDailyStatus(t *testing.T) {
	s := newTestScheduler(&fakeRunner{})
	if err := s.StartDaily("00:00"); err != nil {
		t.Fatalf("StartDaily failed: %v", err)
	}
	defer s.Stop()

	status := s.Status(context.Background())
	if !status.Active {
		t.Error("expected active scheduler")
	}
	if status.Mode != ModeDaily {
		t.Errorf("Mode = %q, want daily", status.Mode)
	}
	if status.Schedule != "00:00" {
		t.Errorf("Schedule = %q, want 00:00", status.Schedule)
	}
	if status.NextExecution == nil {
		t.Fatal("expected next execution time")
	}

	// The next firing is the upcoming business-time midnight.
	next := status.NextExecution.In(period.Business)
	if next.Hour() != 0 || next.Minute() != 0 {
		t.Errorf("next execution = %v, want a 00:00 wall clock", next)
	}
	if !next.After(time.Now()) {
		t.Errorf("next execution %v is in the past", next)
	}
}

func TestStartDailyRejectsBadClock(t *testing.T) {
	s := newTestScheduler(&fakeRunner{})
	if err := s.StartDaily("25:00"); err == nil {
		t.Error("expected error for invalid clock")
	}
	if s.Status(context.Background()).Active {
		t.Error("scheduler must stay inactive after a rejected start")
	}
}

func TestDoubleStartRejected(t *testing.T) {
	s := newTestScheduler(&fakeRunner{})
	if err := s.StartDaily("12:00"); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if err := s.StartDaily("13:00"); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("expected ErrAlreadyActive, got %v", err)
	}
	if err := s.StartOnceToday("23:59"); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestStopInactive(t *testing.T) {
	s := newTestScheduler(&fakeRunner{})
	if err := s.Stop(); !errors.Is(err, ErrNotActive) {
		t.Errorf("expected ErrNotActive, got %v", err)
	}
}

func TestStopDeactivates(t *testing.T) {
	s := newTestScheduler(&fakeRunner{})
	if err := s.StartDaily("12:00"); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	status := s.Status(context.Background())
	if status.Active {
		t.Error("expected inactive scheduler")
	}
	if status.Schedule != "" {
		t.Errorf("Schedule = %q, want empty", status.Schedule)
	}

	// Restart must be possible after stop.
	if err := s.StartDaily("13:00"); err != nil {
		t.Errorf("restart failed: %v", err)
	}
	s.Stop()
}

func TestOnceTodayAlreadyPassed(t *testing.T) {
	s := newTestScheduler(&fakeRunner{})
	s.now = func() time.Time {
		return time.Date(2025, 12, 5, 15, 0, 0, 0, period.Business)
	}

	if err := s.StartOnceToday("14:00"); !errors.Is(err, ErrTimePassed) {
		t.Errorf("expected ErrTimePassed, got %v", err)
	}
	if s.Status(context.Background()).Active {
		t.Error("scheduler must stay inactive")
	}
}

func TestOnceTodayFiresAndDeactivates(t *testing.T) {
	r := &fakeRunner{fired: make(chan struct{}, 1)}
	s := newTestScheduler(r)

	// Aim the one-shot a few milliseconds in the future.
	target := time.Now().In(period.Business).Add(3 * time.Second)
	s.now = func() time.Time {
		return time.Date(target.Year(), target.Month(), target.Day(),
			target.Hour(), target.Minute(), 0, 0, period.Business).Add(-50 * time.Millisecond)
	}

	clock := target.Format("15:04")
	if err := s.StartOnceToday(clock); err != nil {
		t.Fatalf("StartOnceToday failed: %v", err)
	}

	select {
	case <-r.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot schedule did not fire")
	}

	// The schedule deactivates itself after firing.
	deadline := time.After(time.Second)
	for s.Status(context.Background()).Active {
		select {
		case <-deadline:
			t.Fatal("scheduler still active after one-shot fired")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if r.runCount() != 1 {
		t.Errorf("runs = %d, want 1", r.runCount())
	}
}

func TestTriggerNowRuns(t *testing.T) {
	r := &fakeRunner{fired: make(chan struct{}, 1)}
	s := newTestScheduler(r)

	s.TriggerNow()

	select {
	case <-r.fired:
	case <-time.After(time.Second):
		t.Fatal("manual trigger did not run")
	}
}

func TestFireSwallowsAlreadyRunning(t *testing.T) {
	r := &fakeRunner{err: engine.ErrAlreadyRunning}
	s := newTestScheduler(r)

	// Must not panic or wedge the scheduler.
	s.fire()
	if r.runCount() != 1 {
		t.Errorf("runs = %d, want 1", r.runCount())
	}
}
