package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/replisync/internal/config"
	"github.com/robfig/cron/v3"
)

// Task is one triggered unit of work, typically a sync run over all collections.
type Task func(ctx context.Context) error

// Scheduler triggers a Task on an interval or a cron expression. A trigger that
// fires while the previous run is still in progress is skipped.
type Scheduler struct {
	every time.Duration
	cron  cron.Schedule
	desc  string
}

// New builds a scheduler from a validated schedule config.
func New(s *config.Schedule) (*Scheduler, error) {
	if s == nil {
		return nil, errors.New("no schedule configured")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	switch s.Type {
	case config.ScheduleInterval:
		return Every(time.Duration(s.EverySeconds) * time.Second), nil
	default:
		sched, err := cron.ParseStandard(s.Expression)
		if err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", s.Expression, err)
		}
		return &Scheduler{cron: sched, desc: "cron " + s.Expression}, nil
	}
}

// Every returns an interval scheduler.
func Every(d time.Duration) *Scheduler {
	return &Scheduler{every: d, desc: "every " + d.String()}
}

func (s *Scheduler) String() string {
	return s.desc
}

// Run executes task once immediately and then on every trigger until ctx is
// cancelled. Task errors are logged and do not stop the schedule.
func (s *Scheduler) Run(ctx context.Context, task Task) error {
	slog.Info("scheduler start", "schedule", s.desc)
	defer slog.Info("scheduler stop", "schedule", s.desc)

	runTask(ctx, task)

	if s.cron != nil {
		return s.runCron(ctx, task)
	}
	return s.runInterval(ctx, task)
}

// runInterval uses a timer rather than a ticker so that a slow run does not
// queue up ticks behind it.
func (s *Scheduler) runInterval(ctx context.Context, task Task) error {
	timer := time.NewTimer(s.every)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			runTask(ctx, task)
			timer.Reset(s.every)
		}
	}
}

func (s *Scheduler) runCron(ctx context.Context, task Task) error {
	logger := slogCronLogger{}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)), cron.WithLogger(logger))
	c.Schedule(s.cron, cron.FuncJob(func() {
		runTask(ctx, task)
	}))

	c.Start()
	<-ctx.Done()
	// wait for a running job to finish
	<-c.Stop().Done()
	return ctx.Err()
}

func runTask(ctx context.Context, task Task) {
	if ctx.Err() != nil {
		return
	}
	if err := task(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scheduled run failed", "error", err)
	}
}

// slogCronLogger adapts cron's logger to slog.
type slogCronLogger struct{}

func (slogCronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron "+msg, keysAndValues...)
}

func (slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron "+msg, append(keysAndValues, "error", err)...)
}
