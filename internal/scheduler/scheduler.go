package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

var specParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler runs the due-letter check on a cron schedule. Start and Stop are
// idempotent; at most one loop is active per Scheduler, and tick panics are
// recovered so a bad batch cannot kill the timer.
type Scheduler struct {
	schedule cron.Schedule
	spec     string
	tickFn   func(context.Context)

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	c      *cron.Cron
	wg     sync.WaitGroup
}

// New validates the cron spec (standard five fields or descriptors such as
// "@every 1m") and wires the tick function.
func New(spec string, tickFn func(context.Context)) (*Scheduler, error) {
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	schedule, err := specParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return &Scheduler{schedule: schedule, spec: spec, tickFn: tickFn}, nil
}

// Start launches the loop and runs one immediate tick so a freshly booted
// process does not sit on overdue letters for a full period. Returns false if
// the scheduler is already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		slog.Info("scheduler already running")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.c = cron.New(cron.WithParser(specParser))
	s.c.Schedule(s.schedule, cron.FuncJob(func() { s.safeTick(ctx) }))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.safeTick(ctx)
	}()

	s.c.Start()
	s.running.Store(true)

	slog.Info("scheduler started", "spec", s.spec)
	return true
}

// Stop cancels the tick context and waits for any in-flight tick to return.
// Returns false if the scheduler is not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.c.Stop().Done()
	s.wg.Wait()
	s.running.Store(false)

	slog.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) safeTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	s.tickFn(ctx)
	slog.Info("scheduler tick completed", "duration_ms", time.Since(start).Milliseconds())
}
