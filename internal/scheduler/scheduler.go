// Package scheduler triggers ETL executions on a clock: every day at a fixed
// business-time wall clock, or once at the next occurrence today.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/engine"
	"github.com/dennisdiepolder/pbxetl/internal/history"
	"github.com/dennisdiepolder/pbxetl/internal/period"
	"github.com/dennisdiepolder/pbxetl/internal/types"
)

var (
	// ErrAlreadyActive is returned when a schedule is started twice.
	ErrAlreadyActive = errors.New("scheduler already active")
	// ErrNotActive is returned when stopping an inactive scheduler.
	ErrNotActive = errors.New("scheduler not active")
	// ErrTimePassed is returned for a once-today schedule whose time has
	// already gone by.
	ErrTimePassed = errors.New("scheduled time already passed today")
)

// Runner is the execution the scheduler fires. Satisfied by *engine.Engine.
type Runner interface {
	Run(ctx context.Context) (types.Outcome, error)
	IsRunning() bool
}

// Mode distinguishes the two schedule shapes.
type Mode string

const (
	ModeDaily Mode = "daily"
	ModeOnce  Mode = "once"
)

// Status is the control-surface snapshot of the scheduler.
type Status struct {
	Active        bool            `json:"isActive"`
	Running       bool            `json:"isRunning"`
	Mode          Mode            `json:"mode,omitempty"`
	Schedule      string          `json:"schedule,omitempty"`
	NextExecution *time.Time      `json:"nextExecution,omitempty"`
	LastExecution *types.Outcome  `json:"lastExecution,omitempty"`
	History       []types.Outcome `json:"executionHistory"`
}

// Scheduler owns at most one active schedule at a time.
type Scheduler struct {
	mu sync.Mutex

	runner Runner
	ledger *history.Ledger
	logger zerolog.Logger

	cron     *cron.Cron
	timer    *time.Timer
	mode     Mode
	schedule string // HH:MM business time
	nextOnce time.Time

	// overridable in tests
	now func() time.Time
}

// New creates a scheduler around a runner.
func New(runner Runner, ledger *history.Ledger, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		ledger: ledger,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// StartDaily activates a schedule firing every day at the given HH:MM
// business wall-clock time.
func (s *Scheduler) StartDaily(clock string) error {
	hour, minute, err := parseClock(clock)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active() {
		return ErrAlreadyActive
	}

	c := cron.New(cron.WithLocation(period.Business))
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := c.AddFunc(spec, s.fire); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", clock, err)
	}
	c.Start()

	s.cron = c
	s.mode = ModeDaily
	s.schedule = clock

	s.logger.Info().
		Str("schedule", clock).
		Time("next", c.Entries()[0].Next).
		Msg("daily schedule started")
	return nil
}

// StartOnceToday activates a one-shot schedule at today's HH:MM business
// time. The schedule deactivates itself after firing.
func (s *Scheduler) StartOnceToday(clock string) error {
	hour, minute, err := parseClock(clock)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active() {
		return ErrAlreadyActive
	}

	delay, at, err := untilToday(s.now(), hour, minute)
	if err != nil {
		return err
	}

	s.timer = time.AfterFunc(delay, func() {
		s.fire()
		s.mu.Lock()
		s.timer = nil
		s.mode = ""
		s.schedule = ""
		s.mu.Unlock()
	})
	s.mode = ModeOnce
	s.schedule = clock
	s.nextOnce = at

	s.logger.Info().
		Str("schedule", clock).
		Time("next", at).
		Msg("one-shot schedule started")
	return nil
}

// Stop deactivates the current schedule. A run already in flight is not
// interrupted.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active() {
		return ErrNotActive
	}

	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mode = ""
	s.schedule = ""

	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// TriggerNow starts a manual execution without touching the schedule. The
// run happens in the background; an in-flight run makes this a no-op skip.
func (s *Scheduler) TriggerNow() {
	go s.fire()
}

// Status returns the snapshot served on the control API.
func (s *Scheduler) Status(ctx context.Context) Status {
	s.mu.Lock()
	status := Status{
		Active:   s.active(),
		Running:  s.runner.IsRunning(),
		Mode:     s.mode,
		Schedule: s.schedule,
	}
	if s.cron != nil && len(s.cron.Entries()) > 0 {
		next := s.cron.Entries()[0].Next
		status.NextExecution = &next
	} else if s.timer != nil {
		next := s.nextOnce
		status.NextExecution = &next
	}
	s.mu.Unlock()

	if last, ok := s.ledger.Last(ctx); ok {
		status.LastExecution = &last
	}
	status.History = s.ledger.Recent(ctx, 5)
	return status
}

func (s *Scheduler) active() bool {
	return s.cron != nil || s.timer != nil
}

func (s *Scheduler) fire() {
	if _, err := s.runner.Run(context.Background()); err != nil {
		if errors.Is(err, engine.ErrAlreadyRunning) {
			s.logger.Warn().Msg("skipping trigger, execution already in progress")
			return
		}
		s.logger.Error().Err(err).Msg("scheduled execution failed to start")
	}
}

// parseClock parses "HH:MM" into hour and minute.
func parseClock(clock string) (int, int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return hour, minute, nil
}

// untilToday computes the delay from now until today's HH:MM business time.
func untilToday(now time.Time, hour, minute int) (time.Duration, time.Time, error) {
	local := now.In(period.Business)
	at := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, period.Business)
	if !at.After(now) {
		return 0, time.Time{}, ErrTimePassed
	}
	return at.Sub(now), at, nil
}
