// Package scheduler drives tracker cycles on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/williampepple1/listing-notifier/internal/logger"
	"github.com/williampepple1/listing-notifier/pkg/models"
)

// Runner executes one cycle
type Runner interface {
	RunOnce(ctx context.Context) models.CycleReport
}

// Scheduler runs cycles on an interval and on demand, never two at once
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	log        logger.Logger

	mu sync.Mutex
}

// New creates a scheduler. cron rounds the interval down to whole seconds, minimum one.
func New(runner Runner, interval time.Duration, runOnStart bool, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		log:        log,
	}
}

// Trigger runs one cycle now, waiting for any cycle already in flight
func (s *Scheduler) Trigger(ctx context.Context) models.CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner.RunOnce(ctx)
}

// Run blocks until ctx is cancelled, then waits for the running cycle to return
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %s", s.interval)
	}

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		s.Trigger(ctx)
	}))

	s.log.Info("Scheduler started",
		logger.Duration("interval", s.interval),
		logger.Any("run_on_start", s.runOnStart),
	)

	if s.runOnStart {
		s.Trigger(ctx)
	}
	c.Start()

	<-ctx.Done()

	s.log.Info("Stopping scheduler")
	stopCtx := c.Stop()
	<-stopCtx.Done()
	s.log.Info("Scheduler stopped")
	return nil
}

// cronLogger adapts the structured logger to cron's logging interface
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, pairs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(pairs(keysAndValues), logger.Error(err))...)
}

func pairs(keysAndValues []any) []logger.Field {
	fields := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
