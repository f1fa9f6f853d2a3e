package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/example/wordforge/internal/clock"
	"github.com/example/wordforge/internal/notify"
	"github.com/example/wordforge/pkg/models"
)

// DefaultPollInterval is how often due jobs are checked
const DefaultPollInterval = 30 * time.Second

const (
	reminderPrefix = "word_reminder_"
	reminderTitle  = "Time to review!"
)

var (
	// ErrInvalidKey is returned for empty keys and keys owned by a periodic handler
	ErrInvalidKey = errors.New("invalid job key")
	// ErrInvalidPeriod is returned when a periodic job has a non-positive period
	ErrInvalidPeriod = errors.New("invalid job period")
)

// JobStore persists pending jobs
type JobStore interface {
	ReplaceOneShot(ctx context.Context, job models.ScheduledJob) (models.ScheduledJob, error)
	InsertIfAbsent(ctx context.Context, job models.ScheduledJob) (models.ScheduledJob, bool, error)
	Remove(ctx context.Context, key string) error
	RemoveBySeq(ctx context.Context, seq int64) (bool, error)
	RemoveAll(ctx context.Context) error
	UpdateFireAt(ctx context.Context, seq int64, fireAt time.Time) (bool, error)
	DueJobs(ctx context.Context, asOf time.Time) ([]models.ScheduledJob, error)
	List(ctx context.Context) ([]models.ScheduledJob, error)
}

// PeriodicFunc is the body of a periodic job
type PeriodicFunc func(ctx context.Context, job models.ScheduledJob) error

// Options tunes the scheduler
type Options struct {
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Report summarizes one FireDue pass
type Report struct {
	Delivered  int
	Suppressed int
	Failed     int
	Periodic   int
}

// Total is the number of jobs fired in the pass
func (r Report) Total() int {
	return r.Delivered + r.Suppressed + r.Failed + r.Periodic
}

// Scheduler manages per-word reminders and periodic jobs.
// At most one job is pending per key; scheduling a key again replaces it.
type Scheduler struct {
	store    JobStore
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	poll     time.Duration

	mu       sync.Mutex
	handlers map[string]PeriodicFunc

	runMu   sync.Mutex // guards cron and running
	cron    *gocron.Scheduler
	running bool

	passMu sync.Mutex // held for the whole of a polling pass
	halted atomic.Bool
}

// New creates a new scheduler instance
func New(store JobStore, notifier notify.Notifier, clk clock.Clock, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		clock:    clk,
		logger:   opts.Logger.With("component", "scheduler"),
		poll:     opts.PollInterval,
		handlers: make(map[string]PeriodicFunc),
		cron:     gocron.NewScheduler(time.UTC),
	}
}

// ReminderID is the notification ID used for the reminder of key
func ReminderID(key string) string {
	return reminderPrefix + key
}

// Reminder builds the notification shown for a one-shot job
func Reminder(key, displayText string) notify.Notification {
	return notify.Notification{
		ID:    ReminderID(key),
		Title: reminderTitle,
		Body:  fmt.Sprintf("Do you remember what \"%s\" means?", displayText),
	}
}

// Handle registers fn as the body of the periodic job stored under key
func (s *Scheduler) Handle(key string, fn PeriodicFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[key] = fn
}

// Schedule replaces any pending job for key with a one-shot reminder at fireAt.
// A fireAt that is not in the future fires on the next pass.
func (s *Scheduler) Schedule(ctx context.Context, key, displayText string, fireAt time.Time) (models.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" {
		return models.ScheduledJob{}, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if _, periodic := s.handlers[key]; periodic {
		return models.ScheduledJob{}, fmt.Errorf("%w: %s is reserved for a periodic job", ErrInvalidKey, key)
	}

	if now := s.clock.Now(); !fireAt.After(now) {
		fireAt = now
	}
	job, err := s.store.ReplaceOneShot(ctx, models.ScheduledJob{
		Key:     key,
		Kind:    models.JobOneShot,
		FireAt:  fireAt,
		Payload: displayText,
	})
	if err != nil {
		return models.ScheduledJob{}, fmt.Errorf("schedule %s: %w", key, err)
	}
	s.logger.Debug("reminder scheduled", "key", key, "fire_at", fireAt, "seq", job.Seq)
	return job, nil
}

// Cancel removes the pending job for key, if any
func (s *Scheduler) Cancel(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Remove(ctx, key); err != nil {
		return fmt.Errorf("cancel %s: %w", key, err)
	}
	s.logger.Debug("job cancelled", "key", key)
	return nil
}

// CancelAll removes every pending job, periodic ones included
func (s *Scheduler) CancelAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.RemoveAll(ctx); err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	s.logger.Info("all jobs cancelled")
	return nil
}

// EnsurePeriodic creates a periodic job under key unless one is pending.
// It reports whether a job was created.
func (s *Scheduler) EnsurePeriodic(ctx context.Context, key string, firstFire time.Time, period time.Duration) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if period <= 0 {
		return false, fmt.Errorf("%w: %v", ErrInvalidPeriod, period)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, created, err := s.store.InsertIfAbsent(ctx, models.ScheduledJob{
		Key:    key,
		Kind:   models.JobPeriodic,
		FireAt: firstFire,
		Period: period,
	})
	if err != nil {
		return false, fmt.Errorf("ensure %s: %w", key, err)
	}
	if created {
		s.logger.Info("periodic job scheduled", "key", key, "first_fire", job.FireAt, "period", period)
	}
	return created, nil
}

// Pending returns the pending jobs in firing order
func (s *Scheduler) Pending(ctx context.Context) ([]models.ScheduledJob, error) {
	return s.store.List(ctx)
}

// FireDue fires every job that is due now. Jobs are claimed under the lock
// and run outside it, so a slow notifier never blocks scheduling.
func (s *Scheduler) FireDue(ctx context.Context) (Report, error) {
	claimed, handlers, err := s.claimDue(ctx)

	var report Report
	for _, job := range claimed {
		if job.Kind == models.JobPeriodic {
			s.runPeriodic(ctx, job, handlers[job.Key], &report)
			continue
		}
		s.deliver(ctx, job, &report)
	}
	return report, err
}

func (s *Scheduler) claimDue(ctx context.Context) ([]models.ScheduledJob, map[string]PeriodicFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	due, err := s.store.DueJobs(ctx, now)
	if err != nil {
		return nil, nil, fmt.Errorf("load due jobs: %w", err)
	}

	handlers := make(map[string]PeriodicFunc, len(s.handlers))
	for k, fn := range s.handlers {
		handlers[k] = fn
	}

	claimed := make([]models.ScheduledJob, 0, len(due))
	for _, job := range due {
		var ok bool
		if job.Kind == models.JobPeriodic && job.Period > 0 {
			ok, err = s.store.UpdateFireAt(ctx, job.Seq, nextFire(job.FireAt, job.Period, now))
		} else {
			ok, err = s.store.RemoveBySeq(ctx, job.Seq)
		}
		if err != nil {
			return claimed, handlers, fmt.Errorf("claim job %s: %w", job.Key, err)
		}
		if ok {
			claimed = append(claimed, job)
		}
	}
	return claimed, handlers, nil
}

// nextFire advances fireAt by whole periods until it is after now.
// Periods missed while the process was down are skipped, not replayed.
func nextFire(fireAt time.Time, period time.Duration, now time.Time) time.Time {
	if fireAt.After(now) {
		return fireAt
	}
	missed := now.Sub(fireAt)/period + 1
	return fireAt.Add(missed * period)
}

func (s *Scheduler) deliver(ctx context.Context, job models.ScheduledJob, report *Report) {
	if !s.notifier.Permitted() {
		report.Suppressed++
		s.logger.Info("reminder suppressed", "key", job.Key, "reason", "not permitted")
		return
	}
	outcome, err := s.notifier.Deliver(ctx, Reminder(job.Key, job.Payload))
	switch {
	case err != nil:
		report.Failed++
		s.logger.Error("reminder delivery failed", "key", job.Key, "error", err)
	case outcome == notify.Suppressed:
		report.Suppressed++
		s.logger.Info("reminder suppressed", "key", job.Key)
	default:
		report.Delivered++
		s.logger.Debug("reminder delivered", "key", job.Key)
	}
}

func (s *Scheduler) runPeriodic(ctx context.Context, job models.ScheduledJob, fn PeriodicFunc, report *Report) {
	if fn == nil {
		report.Failed++
		s.logger.Warn("no handler for periodic job", "key", job.Key)
		return
	}
	if err := fn(ctx, job); err != nil {
		report.Failed++
		s.logger.Error("periodic job failed", "key", job.Key, "error", err)
		return
	}
	report.Periodic++
}

// Start runs FireDue every poll interval, beginning immediately so reminders
// missed while the process was down fire right away.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}

	_, err := s.cron.Every(s.poll).SingletonMode().Do(func() {
		s.tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule poll job: %w", err)
	}

	// Start the scheduler in a non-blocking manner
	s.halted.Store(false)
	s.cron.StartAsync()
	s.running = true
	s.logger.Info("scheduler started", "poll_interval", s.poll)
	return nil
}

// Stop terminates the driving loop and waits for a pass in progress to
// finish, so the store can be closed right after. Pending jobs stay in the store.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}
	s.halted.Store(true)
	s.cron.Stop()
	s.cron.Clear()

	s.passMu.Lock()
	s.passMu.Unlock()

	s.running = false
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	if s.halted.Load() || ctx.Err() != nil {
		return
	}
	report, err := s.FireDue(ctx)
	if err != nil {
		s.logger.Error("error firing due jobs", "error", err)
	}
	if report.Total() > 0 {
		s.logger.Info("fired due jobs",
			"delivered", report.Delivered,
			"suppressed", report.Suppressed,
			"failed", report.Failed,
			"periodic", report.Periodic)
	}
}
