// Package scheduler runs deferred work keyed by entity.
//
// One-time tasks are addressed by a key such as "ban:<id>"; scheduling a key again
// replaces the pending task and Cancel discards it. Tasks must re-check the state of
// their entity when they fire, since cancellation can race with an imminent firing.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Task is the work run when a scheduled instant is reached
type Task func(ctx context.Context)

// Scheduler arms and cancels keyed one-time tasks
type Scheduler interface {
	Schedule(key string, at time.Time, task Task) error
	Cancel(key string) bool
	Pending(key string) bool
}

// CronScheduler implements Scheduler on top of gocron
type CronScheduler struct {
	ctx   context.Context
	cron  gocron.Scheduler
	clock clockwork.Clock

	mu   sync.Mutex
	jobs map[string]uuid.UUID
}

// NewCronScheduler creates a scheduler whose tasks receive ctx
func NewCronScheduler(ctx context.Context, clock clockwork.Clock) (*CronScheduler, error) {
	cron, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scheduler")
	}

	return &CronScheduler{
		ctx:   ctx,
		cron:  cron,
		clock: clock,
		jobs:  make(map[string]uuid.UUID),
	}, nil
}

// Start begins running jobs
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Shutdown stops the scheduler; pending one-time tasks are dropped
func (s *CronScheduler) Shutdown() error {
	return s.cron.Shutdown()
}

// Schedule arms task to run at at, replacing any task pending under key.
// An instant that is not in the future runs the task immediately.
func (s *CronScheduler) Schedule(key string, at time.Time, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(key)

	var jobID uuid.UUID
	run := gocron.NewTask(func() {
		if !s.release(key, &jobID) {
			return
		}
		task(s.ctx)
	})

	start := gocron.OneTimeJobStartImmediately()
	if at.After(s.clock.Now()) {
		start = gocron.OneTimeJobStartDateTime(at)
	}
	job, err := s.cron.NewJob(gocron.OneTimeJob(start), run, gocron.WithName(key), gocron.WithTags(key))
	if err != nil && !at.After(s.clock.Now()) {
		// the instant passed while the job was being created
		job, err = s.cron.NewJob(gocron.OneTimeJob(gocron.OneTimeJobStartImmediately()), run, gocron.WithName(key), gocron.WithTags(key))
	}
	if err != nil {
		return errors.Wrapf(err, "failed to schedule %s", key)
	}
	jobID = job.ID()
	s.jobs[key] = jobID

	log.Debug().Str("key", key).Time("at", at).Msg("Task scheduled")
	return nil
}

// Cancel discards the task pending under key and reports whether there was one
func (s *CronScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(key)
}

// Pending reports whether a task is armed under key
func (s *CronScheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok
}

// Every runs task at a fixed interval, the first time immediately
func (s *CronScheduler) Every(name string, interval time.Duration, task Task) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { task(s.ctx) }),
		gocron.WithName(name),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to schedule periodic job %s", name)
	}
	return nil
}

// release drops the bookkeeping for a job that is firing. It returns false when the
// job was replaced or cancelled after gocron had already picked it up.
func (s *CronScheduler) release(key string, jobID *uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[key]
	if !ok || current != *jobID {
		return false
	}
	delete(s.jobs, key)
	return true
}

func (s *CronScheduler) removeLocked(key string) bool {
	jobID, ok := s.jobs[key]
	if !ok {
		return false
	}
	delete(s.jobs, key)
	if err := s.cron.RemoveJob(jobID); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		log.Warn().Err(err).Str("key", key).Msg("Failed to remove scheduled job")
	}
	return true
}
