// Package catchup sends one daily digest listing every overdue word.
//
// The digest is a single periodic job stored under JobKey. It is anchored to
// a wall-clock time of day and delivered under a fixed notification ID, so a
// new digest always replaces yesterday's.
package catchup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/wordforge/internal/clock"
	"github.com/example/wordforge/internal/notify"
	"github.com/example/wordforge/internal/scheduler"
	"github.com/example/wordforge/pkg/models"
)

const (
	// JobKey identifies the catch-up job in the job store
	JobKey = "daily_catchup"
	// NotificationID is shared by every digest so they replace each other
	NotificationID = "daily_catchup"
	// Period between two digests
	Period = 24 * time.Hour

	previewCount = 3
)

// TimeOfDay is a wall-clock time, e.g. 09:00
type TimeOfDay struct {
	Hour   int
	Minute int
}

// DefaultTime is the default digest time
var DefaultTime = TimeOfDay{Hour: 9}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// NextAnchor returns today's target in loc if now is strictly before it,
// otherwise tomorrow's. Days are calendar days, so the anchor keeps its
// wall-clock time across DST changes.
func NextAnchor(now time.Time, target TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	y, m, d := local.Date()
	anchor := time.Date(y, m, d, target.Hour, target.Minute, 0, 0, loc)
	if local.Before(anchor) {
		return anchor
	}
	return time.Date(y, m, d+1, target.Hour, target.Minute, 0, 0, loc)
}

// OverdueLister reads words that are due
type OverdueLister interface {
	ListOverdue(ctx context.Context, asOf time.Time) ([]models.Word, error)
}

// PeriodicScheduler runs periodic jobs
type PeriodicScheduler interface {
	EnsurePeriodic(ctx context.Context, key string, firstFire time.Time, period time.Duration) (bool, error)
	Handle(key string, fn scheduler.PeriodicFunc)
}

// Options configures the aggregator
type Options struct {
	At       TimeOfDay
	Location *time.Location
	Logger   *slog.Logger
}

// Aggregator builds and delivers the daily digest
type Aggregator struct {
	words    OverdueLister
	sched    PeriodicScheduler
	notifier notify.Notifier
	clock    clock.Clock
	at       TimeOfDay
	loc      *time.Location
	logger   *slog.Logger
}

// New creates a catch-up aggregator
func New(words OverdueLister, sched PeriodicScheduler, notifier notify.Notifier, clk clock.Clock, opts Options) *Aggregator {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Aggregator{
		words:    words,
		sched:    sched,
		notifier: notifier,
		clock:    clk,
		at:       opts.At,
		loc:      opts.Location,
		logger:   opts.Logger.With("component", "catchup"),
	}
}

// Register binds Run as the handler of the catch-up job
func (a *Aggregator) Register() {
	a.sched.Handle(JobKey, func(ctx context.Context, _ models.ScheduledJob) error {
		return a.Run(ctx)
	})
}

// EnsureScheduled creates the catch-up job at the next anchor unless one is
// already pending. Safe to call on every start.
func (a *Aggregator) EnsureScheduled(ctx context.Context) (bool, error) {
	anchor := NextAnchor(a.clock.Now(), a.at, a.loc)
	created, err := a.sched.EnsurePeriodic(ctx, JobKey, anchor, Period)
	if err != nil {
		return false, err
	}
	if created {
		a.logger.Info("daily catch-up scheduled", "first_fire", anchor, "at", a.at.String())
	}
	return created, nil
}

// Run delivers one digest of the words overdue right now
func (a *Aggregator) Run(ctx context.Context) error {
	if !a.notifier.Permitted() {
		a.logger.Info("catch-up skipped", "reason", "notifications not permitted")
		return nil
	}

	overdue, err := a.words.ListOverdue(ctx, a.clock.Now())
	if err != nil {
		return fmt.Errorf("load overdue words: %w", err)
	}
	if len(overdue) == 0 {
		a.logger.Debug("no overdue words")
		return nil
	}

	outcome, err := a.notifier.Deliver(ctx, Summarize(overdue))
	if err != nil {
		return fmt.Errorf("deliver catch-up: %w", err)
	}
	if outcome == notify.Suppressed {
		a.logger.Info("catch-up suppressed", "overdue", len(overdue))
		return nil
	}
	a.logger.Info("catch-up delivered", "overdue", len(overdue))
	return nil
}

// Summarize builds the digest for words, which must be non-empty.
// The body previews the first three terms in the given order.
func Summarize(words []models.Word) notify.Notification {
	n := len(words)
	title := "1 word to review"
	if n != 1 {
		title = fmt.Sprintf("%d words to review", n)
	}

	preview := make([]string, 0, previewCount)
	for i := 0; i < n && i < previewCount; i++ {
		preview = append(preview, words[i].Term)
	}
	body := strings.Join(preview, ", ")
	if n > previewCount {
		body += fmt.Sprintf(" and %d more", n-previewCount)
	}

	return notify.Notification{ID: NotificationID, Title: title, Body: body}
}
