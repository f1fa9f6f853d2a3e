package trainer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/wordforge/internal/catchup"
	"github.com/example/wordforge/internal/clock"
	"github.com/example/wordforge/internal/database"
	"github.com/example/wordforge/internal/logging"
	"github.com/example/wordforge/internal/notify"
	"github.com/example/wordforge/internal/scheduler"
	"github.com/example/wordforge/internal/spaced_repetition"
	"github.com/example/wordforge/pkg/models"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc   *Service
	db    *sqlx.DB
	clock *clock.Fake
	inbox *notify.Memory
	words *database.WordRepository
	sched *scheduler.Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.Connect(database.DriverSQLite, filepath.Join(t.TempDir(), "trainer.db"))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := &harness{
		db:    db,
		clock: clock.NewFake(t0),
		inbox: notify.NewMemory(),
		words: database.NewWordRepository(db),
	}
	log := logging.Discard()
	h.sched = scheduler.New(database.NewJobRepository(db), h.inbox, h.clock, scheduler.Options{Logger: log})
	agg := catchup.New(h.words, h.sched, h.inbox, h.clock, catchup.Options{At: catchup.DefaultTime, Location: time.UTC, Logger: log})
	agg.Register()
	h.svc = New(h.words, h.sched, agg, h.clock, log)
	return h
}

func (h *harness) job(t *testing.T, key string) (models.ScheduledJob, bool) {
	t.Helper()
	jobs, err := h.sched.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var found []models.ScheduledJob
	for _, j := range jobs {
		if j.Key == key {
			found = append(found, j)
		}
	}
	if len(found) > 1 {
		t.Fatalf("%d pending jobs for %s, want at most 1", len(found), key)
	}
	if len(found) == 0 {
		return models.ScheduledJob{}, false
	}
	return found[0], true
}

func (h *harness) setTier(t *testing.T, id string, tier int) {
	t.Helper()
	w, err := h.words.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	w.Tier = tier
	if err := h.words.Save(context.Background(), w); err != nil {
		t.Fatal(err)
	}
}

func TestAddItemSchedulesFirstReminder(t *testing.T) {
	h := newHarness(t)

	w, err := h.svc.AddItem(context.Background(), "  ephemeral ", "lasting a short time")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if w.Term != "ephemeral" || w.Tier != 0 {
		t.Fatalf("word = %+v", w)
	}
	if !w.DueAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("due = %v, want t0+1h", w.DueAt)
	}

	job, ok := h.job(t, w.ID)
	if !ok || !job.FireAt.Equal(t0.Add(time.Hour)) || job.Payload != "ephemeral" {
		t.Fatalf("job = %+v, %v", job, ok)
	}

	stored, err := h.svc.GetItem(context.Background(), w.ID)
	if err != nil || stored.Term != "ephemeral" {
		t.Fatalf("GetItem = %+v, %v", stored, err)
	}
}

func TestAddItemRejectsEmptyTerm(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.AddItem(context.Background(), "   ", "x"); !errors.Is(err, ErrEmptyTerm) {
		t.Fatalf("err = %v, want ErrEmptyTerm", err)
	}
}

func TestCorrectAnswerPromotesAndReplacesJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	w, _ := h.svc.AddItem(ctx, "ubiquitous", "everywhere")
	h.setTier(t, w.ID, 3)
	old, _ := h.job(t, w.ID)

	h.clock.Advance(100 * time.Second)
	got, err := h.svc.RecordAnswer(ctx, w.ID, spaced_repetition.Correct)
	if err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	answeredAt := t0.Add(100 * time.Second)
	if got.Tier != 4 || !got.DueAt.Equal(answeredAt.Add(48*time.Hour)) {
		t.Fatalf("word = tier %d due %v", got.Tier, got.DueAt)
	}
	if got.CorrectCount != 1 || got.LastAnsweredAt == nil || !got.LastAnsweredAt.Equal(answeredAt) {
		t.Fatalf("counters = %+v", got)
	}

	job, ok := h.job(t, w.ID)
	if !ok || job.Seq == old.Seq || !job.FireAt.Equal(answeredAt.Add(48*time.Hour)) {
		t.Fatalf("job = %+v, want a replacement firing at +2d", job)
	}
}

func TestIncorrectAnswerAtFloor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	w, _ := h.svc.AddItem(ctx, "obdurate", "stubborn")
	h.clock.Advance(30 * time.Minute)
	got, err := h.svc.RecordAnswer(ctx, w.ID, spaced_repetition.Incorrect)
	if err != nil {
		t.Fatal(err)
	}
	now := h.clock.Now()
	if got.Tier != 0 || !got.DueAt.Equal(now.Add(time.Hour)) || got.IncorrectCount != 1 {
		t.Fatalf("word = %+v", got)
	}
}

func TestIncorrectAnswerDemotes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	w, _ := h.svc.AddItem(ctx, "laconic", "brief")
	h.setTier(t, w.ID, 5)
	got, _ := h.svc.RecordAnswer(ctx, w.ID, spaced_repetition.Incorrect)
	if got.Tier != 4 {
		t.Fatalf("tier = %d, want 4", got.Tier)
	}
}

func TestRecordAnswerUnknownWord(t *testing.T) {
	h := newHarness(t)
	got, err := h.svc.RecordAnswer(context.Background(), "missing", spaced_repetition.Correct)
	if got != nil || err != nil {
		t.Fatalf("RecordAnswer = %v, %v; want nil, nil", got, err)
	}
	if _, ok := h.job(t, "missing"); ok {
		t.Fatal("no job should be scheduled for an unknown word")
	}
}

func TestDeleteItemCancelsReminder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	w, _ := h.svc.AddItem(ctx, "fleeting", "brief")
	if err := h.svc.DeleteItem(ctx, w.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.job(t, w.ID); ok {
		t.Fatal("reminder still pending")
	}
	if _, err := h.svc.GetItem(ctx, w.ID); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := h.svc.DeleteItem(ctx, w.ID); err != nil {
		t.Fatalf("deleting twice: %v", err)
	}
}

func TestDeleteAllReensuresCatchUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// The original catch-up was anchored at t0's next 09:00.
	if _, err := h.svc.EnsureCatchUpScheduled(ctx); err != nil {
		t.Fatal(err)
	}
	h.svc.AddItem(ctx, "alpha", "")
	h.svc.AddItem(ctx, "beta", "")

	h.clock.Set(time.Date(2026, 4, 3, 10, 0, 0, 0, time.UTC))
	if err := h.svc.DeleteAllItems(ctx); err != nil {
		t.Fatal(err)
	}

	jobs, _ := h.sched.Pending(ctx)
	if len(jobs) != 1 || jobs[0].Key != catchup.JobKey {
		t.Fatalf("pending = %+v, want only the catch-up job", jobs)
	}
	if want := time.Date(2026, 4, 4, 9, 0, 0, 0, time.UTC); !jobs[0].FireAt.Equal(want) {
		t.Fatalf("catch-up fires at %v, want a fresh anchor %v", jobs[0].FireAt, want)
	}
	items, _ := h.svc.ListItems(ctx)
	if len(items) != 0 {
		t.Fatalf("items = %d after DeleteAllItems", len(items))
	}
}

func TestEnsureCatchUpIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, _ := h.svc.EnsureCatchUpScheduled(ctx)
	second, _ := h.svc.EnsureCatchUpScheduled(ctx)
	if !first || second {
		t.Fatalf("created = %v, %v; want true, false", first, second)
	}
	if _, ok := h.job(t, catchup.JobKey); !ok {
		t.Fatal("catch-up not pending")
	}
}

func TestListItemsOrderedByDue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, _ := h.svc.AddItem(ctx, "alpha", "")
	h.clock.Advance(time.Minute)
	b, _ := h.svc.AddItem(ctx, "beta", "")
	h.clock.Advance(time.Minute)
	h.svc.RecordAnswer(ctx, a.ID, spaced_repetition.Correct) // alpha now due in 6h

	items, err := h.svc.ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ID != b.ID || items[1].ID != a.ID {
		t.Fatalf("order = %v", items)
	}
}

func TestStorageUnavailableSchedulesNothing(t *testing.T) {
	h := newHarness(t)
	h.db.Close()

	w, err := h.svc.AddItem(context.Background(), "alpha", "")
	if w != nil || !errors.Is(err, database.ErrStorageUnavailable) {
		t.Fatalf("AddItem = %v, %v; want ErrStorageUnavailable", w, err)
	}
	if _, err := h.svc.RecordAnswer(context.Background(), "x", spaced_repetition.Correct); !errors.Is(err, database.ErrStorageUnavailable) {
		t.Fatalf("RecordAnswer err = %v", err)
	}
}

type failingReminders struct {
	Reminders
}

func (failingReminders) Schedule(context.Context, string, string, time.Time) (models.ScheduledJob, error) {
	return models.ScheduledJob{}, database.ErrStorageUnavailable
}

func TestScheduleFailureReturnsSavedWord(t *testing.T) {
	h := newHarness(t)
	svc := New(h.words, failingReminders{Reminders: h.sched}, nil, h.clock, logging.Discard())

	w, err := svc.AddItem(context.Background(), "alpha", "")
	if w == nil || !errors.Is(err, database.ErrStorageUnavailable) {
		t.Fatalf("AddItem = %v, %v; want saved word and error", w, err)
	}
	if _, err := h.words.GetByID(context.Background(), w.ID); err != nil {
		t.Fatalf("word was not persisted: %v", err)
	}
}

// A reminder fires for the word, then the word is answered and the next one
// is scheduled further out.
func TestReminderLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	w, _ := h.svc.AddItem(ctx, "serendipity", "happy accident")
	h.clock.Advance(time.Hour)
	if report, _ := h.sched.FireDue(ctx); report.Delivered != 1 {
		t.Fatalf("report = %+v", report)
	}
	n, ok := h.inbox.Current(scheduler.ReminderID(w.ID))
	if !ok || n.Body != `Do you remember what "serendipity" means?` {
		t.Fatalf("reminder = %+v", n)
	}

	h.svc.RecordAnswer(ctx, w.ID, spaced_repetition.Correct)
	job, ok := h.job(t, w.ID)
	if !ok || !job.FireAt.Equal(h.clock.Now().Add(6*time.Hour)) {
		t.Fatalf("next job = %+v", job)
	}
}

type cancelFailingReminders struct {
	Reminders
}

func (cancelFailingReminders) Cancel(context.Context, string) error {
	return database.ErrStorageUnavailable
}

func (cancelFailingReminders) CancelAll(context.Context) error {
	return database.ErrStorageUnavailable
}

func TestDeleteKeepsWordWhenCancelFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	w, _ := h.svc.AddItem(ctx, "alpha", "")
	svc := New(h.words, cancelFailingReminders{Reminders: h.sched}, nil, h.clock, logging.Discard())

	if err := svc.DeleteItem(ctx, w.ID); !errors.Is(err, database.ErrStorageUnavailable) {
		t.Fatalf("DeleteItem err = %v, want ErrStorageUnavailable", err)
	}
	if _, err := h.words.GetByID(ctx, w.ID); err != nil {
		t.Fatalf("word removed although its reminder is still pending: %v", err)
	}
	if _, ok := h.job(t, w.ID); !ok {
		t.Fatal("reminder should still be pending")
	}

	if err := svc.DeleteAllItems(ctx); !errors.Is(err, database.ErrStorageUnavailable) {
		t.Fatalf("DeleteAllItems err = %v, want ErrStorageUnavailable", err)
	}
	items, _ := h.words.List(ctx)
	if len(items) != 1 {
		t.Fatalf("words left = %d, want 1", len(items))
	}
}
