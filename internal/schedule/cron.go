package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "calpost/internal/log"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a cron expression in a fixed location. Runs never
// overlap: a tick arriving while the previous run is active is skipped.
type Scheduler struct {
	c    *cron.Cron
	spec string
	loc  *time.Location
	job  Job
}

// cronLogger adapts appLog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

// NewScheduler validates spec (standard 5-field syntax or descriptors such as
// "@daily") and prepares a scheduler.
func NewScheduler(spec string, loc *time.Location, job Job) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("schedule: job is nil")
	}
	if loc == nil {
		loc = time.Local
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parsing cron expression %q: %w", spec, err)
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{c: c, spec: spec, loc: loc, job: job}, nil
}

// Run blocks until ctx is canceled, running the job on every tick. It waits
// for an in-flight run to finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	id, err := s.c.AddFunc(s.spec, func() {
		start := time.Now()
		if err := s.job(ctx); err != nil {
			appLog.Error("scheduled run failed", err, "duration", time.Since(start).String())
			return
		}
		appLog.Info("scheduled run finished", "duration", time.Since(start).String())
	})
	if err != nil {
		return fmt.Errorf("registering cron job: %w", err)
	}

	s.c.Start()
	appLog.Info("scheduler started", "cron", s.spec, "next", s.c.Entry(id).Next.Format(time.RFC3339))

	<-ctx.Done()

	appLog.Info("scheduler stopping")
	<-s.c.Stop().Done()
	return nil
}

// Next returns the next activation after t, in the scheduler's location.
func (s *Scheduler) Next(t time.Time) time.Time {
	sched, err := cron.ParseStandard(s.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t.In(s.loc))
}
