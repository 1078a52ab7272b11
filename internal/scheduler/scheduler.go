// Package scheduler triggers classification passes on a cron cadence inside
// a configured operating window, with in-process run exclusivity.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned when a pass is requested while another pass
// holds the run slot.
var ErrAlreadyRunning = eris.New("scheduler: a pass is already running")

// Guard is the single in-process run slot. Cron ticks and manual API
// triggers share one Guard so at most one pass runs at a time.
type Guard struct {
	running atomic.Bool
}

// TryAcquire claims the slot. Returns false when a pass already holds it.
func (g *Guard) TryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

// Release frees the slot.
func (g *Guard) Release() {
	g.running.Store(false)
}

// Running reports whether a pass currently holds the slot.
func (g *Guard) Running() bool {
	return g.running.Load()
}

// Window is a daily operating band in a fixed timezone, weekdays only.
// A band whose end is before its start wraps past midnight.
type Window struct {
	start int // minutes since midnight
	end   int
	loc   *time.Location
}

// ParseWindow builds a Window from "HH:MM" bounds and an IANA timezone name.
func ParseWindow(start, end, timezone string) (*Window, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "scheduler: load timezone %q", timezone)
	}
	startMin, err := parseClock(start)
	if err != nil {
		return nil, err
	}
	endMin, err := parseClock(end)
	if err != nil {
		return nil, err
	}
	return &Window{start: startMin, end: endMin, loc: loc}, nil
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, eris.Errorf("scheduler: invalid clock time %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, eris.Errorf("scheduler: invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, eris.Errorf("scheduler: invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

// Contains reports whether t falls on a weekday inside the band, evaluated
// in the window's timezone. Both bounds are inclusive.
func (w *Window) Contains(t time.Time) bool {
	t = t.In(w.loc)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if w.start <= w.end {
		return m >= w.start && m <= w.end
	}
	return m >= w.start || m <= w.end
}

func (w *Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d %s",
		w.start/60, w.start%60, w.end/60, w.end%60, w.loc)
}

// RunFunc is one classification pass.
type RunFunc func(ctx context.Context) error

// Config holds scheduler settings.
type Config struct {
	CronSpec    string
	Timezone    string
	WindowStart string
	WindowEnd   string
}

// Scheduler fires passes on a cron spec, gated by the operating window and
// the run guard.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	window  *Window
	guard   *Guard
	run     RunFunc
	nowFunc func() time.Time
}

// New creates a scheduler. The guard may be shared with other trigger paths
// (the HTTP API's manual trigger uses the same slot).
func New(cfg Config, guard *Guard, run RunFunc) (*Scheduler, error) {
	window, err := ParseWindow(cfg.WindowStart, cfg.WindowEnd, cfg.Timezone)
	if err != nil {
		return nil, err
	}
	if guard == nil {
		guard = &Guard{}
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(window.loc)),
		spec:    cfg.CronSpec,
		window:  window,
		guard:   guard,
		run:     run,
		nowFunc: time.Now,
	}, nil
}

// Guard returns the shared run slot.
func (s *Scheduler) Guard() *Guard {
	return s.guard
}

// Window returns the operating window.
func (s *Scheduler) Window() *Window {
	return s.window
}

// Start registers the cron entry and begins ticking. It returns immediately;
// the scheduler stops when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return eris.Wrapf(err, "scheduler: invalid cron spec %q", s.spec)
	}
	s.cron.Start()
	zap.L().Info("scheduler started",
		zap.String("cron", s.spec),
		zap.String("window", s.window.String()),
	)

	go func() {
		<-ctx.Done()
		stopped := s.cron.Stop()
		<-stopped.Done()
		zap.L().Info("scheduler stopped")
	}()
	return nil
}

// tick is one cron firing: gate on window, claim the slot, run a pass.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.nowFunc()
	if !s.window.Contains(now) {
		zap.L().Debug("tick outside operating window, skipping",
			zap.Time("now", now.In(s.window.loc)),
		)
		return
	}
	if err := s.RunNow(ctx); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			zap.L().Info("previous pass still running, skipping tick")
			return
		}
		zap.L().Error("scheduled pass failed", zap.Error(err))
	}
}

// RunNow runs one pass immediately if the slot is free. Callers that need
// "trigger unless busy" semantics (manual API runs) use this directly; it
// does not check the operating window.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.guard.TryAcquire() {
		return ErrAlreadyRunning
	}
	defer s.guard.Release()
	return s.run(ctx)
}
