// Package scheduler drives the scrape cycle on a fixed interval or a cron
// expression, with an explicit in-flight gate: a cycle that is still
// running is never overlapped, and manual triggers are rejected rather
// than queued.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/logger"
)

// ErrCycleInFlight is returned when a manual trigger arrives while a cycle
// is already running.
var ErrCycleInFlight = errors.New("a cycle is already running")

// Runner is the unit of work the scheduler repeats. RunCycle must honor its
// context deadline; the scheduler applies no timeout of its own.
type Runner interface {
	RunCycle(ctx context.Context)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context)

// RunCycle calls f.
func (f RunnerFunc) RunCycle(ctx context.Context) { f(ctx) }

// Status is a snapshot of the scheduler for the operator endpoint.
type Status struct {
	Running   bool      `json:"running"`
	InFlight  bool      `json:"in_flight"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
	CycleRuns int64     `json:"cycle_runs"`
}

// Scheduler repeats one runner on a schedule.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	cronExpr string
	log      logger.Interface

	mu       sync.Mutex
	running  bool
	inFlight bool
	lastRun  time.Time
	nextRun  time.Time
	runs     int64

	// restart wakes the interval loop to re-arm its countdown.
	restart chan struct{}
	// trigger carries manual run requests into the loop.
	trigger chan struct{}
}

// New creates a scheduler from the watch configuration. A cron expression
// takes precedence over the interval when both are set.
func New(cfg config.WatchConfig, runner Runner, log logger.Interface) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: time.Duration(cfg.IntervalMinutes) * time.Minute,
		cronExpr: cfg.CronExpression,
		log:      log.WithComponent("scheduler"),
		restart:  make(chan struct{}, 1),
		trigger:  make(chan struct{}, 1),
	}
}

// Run blocks, executing cycles until the context is canceled. The first
// cycle runs immediately; a found code should not wait out the interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.cronExpr != "" {
		return s.runCron(ctx)
	}
	return s.runInterval(ctx)
}

func (s *Scheduler) runInterval(ctx context.Context) error {
	s.log.Info("scheduler started", "interval", s.interval.String())

	s.execute(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	s.setNextRun(time.Now().Add(s.interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.execute(ctx)
		case <-s.trigger:
			s.execute(ctx)
		case <-s.restart:
			s.log.Info("countdown restarted", "interval", s.interval.String())
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.interval)
		s.setNextRun(time.Now().Add(s.interval))
	}
}

func (s *Scheduler) runCron(ctx context.Context) error {
	schedule, err := cron.ParseStandard(s.cronExpr)
	if err != nil {
		return err
	}
	s.log.Info("scheduler started", "cron", s.cronExpr)

	s.execute(ctx)

	for {
		next := schedule.Next(time.Now())
		s.setNextRun(next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.execute(ctx)
		case <-s.trigger:
			timer.Stop()
			s.execute(ctx)
		case <-s.restart:
			timer.Stop()
		}
	}
}

// ForceScrape requests an immediate cycle. It fails fast while a cycle is
// in flight; queueing a second run behind a stuck browser helps nobody.
func (s *Scheduler) ForceScrape() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		return ErrCycleInFlight
	}
	select {
	case s.trigger <- struct{}{}:
		return nil
	default:
		return ErrCycleInFlight
	}
}

// RestartCountdown re-arms the schedule without running a cycle.
func (s *Scheduler) RestartCountdown() {
	select {
	case s.restart <- struct{}{}:
	default:
	}
}

// Status reports the scheduler snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:   s.running,
		InFlight:  s.inFlight,
		LastRun:   s.lastRun,
		NextRun:   s.nextRun,
		CycleRuns: s.runs,
	}
}

func (s *Scheduler) execute(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		s.log.Warn("cycle still in flight, tick skipped")
		return
	}
	s.inFlight = true
	s.lastRun = time.Now()
	s.runs++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	s.runner.RunCycle(ctx)
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
}
