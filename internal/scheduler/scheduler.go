// Package scheduler runs jobs on independent schedules from one goroutine.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Defaults for the tick loop.
const (
	DefaultTick     = 30 * time.Second
	DefaultCooldown = 2 * time.Minute
)

// Func is the body of a scheduled job.
type Func func(ctx context.Context) error

type job struct {
	name     string
	schedule cron.Schedule
	run      Func
	last     time.Time
}

// Scheduler runs every job once at start, then fires jobs as they become
// due. Jobs never run concurrently with each other.
type Scheduler struct {
	jobs     []*job
	log      *slog.Logger
	tick     time.Duration
	cooldown time.Duration
	now      func() time.Time
}

// New creates a Scheduler with the default tick and cooldown.
func New(log *slog.Logger) *Scheduler {
	return &Scheduler{
		log:      log,
		tick:     DefaultTick,
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
}

// SetTickInterval overrides how often due jobs are checked.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetCooldown overrides the pause after a failed job.
func (s *Scheduler) SetCooldown(d time.Duration) {
	s.cooldown = d
}

// Add registers a job. When several jobs are due on the same tick they run
// in the order they were added.
func (s *Scheduler) Add(name string, schedule cron.Schedule, run Func) {
	s.jobs = append(s.jobs, &job{name: name, schedule: schedule, run: run})
}

// ParseSchedule parses a duration such as "1h" into a fixed-interval
// schedule, and anything else with the standard cron parser, which accepts
// descriptors like "@every 3h" and "@daily".
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("schedule %q: interval must be positive", spec)
		}
		return cron.Every(d), nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Run runs every job once, then checks for due jobs on each tick until ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, j)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		if s.due(j) {
			s.runJob(ctx, j)
		}
	}
}

func (s *Scheduler) due(j *job) bool {
	return !j.schedule.Next(j.last).After(s.now())
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	j.last = s.now()
	s.log.Debug("running job", "job", j.name)

	if err := s.call(ctx, j); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error("job failed, cooling down", "job", j.name, "cooldown", s.cooldown, "error", err)
		s.sleep(ctx, s.cooldown)
	}
}

// call runs the job, turning a panic into an error.
func (s *Scheduler) call(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", "job", j.name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.run(ctx)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
