package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/wordforge/pkg/models"
)

func oneShot(key string, at time.Time) models.ScheduledJob {
	return models.ScheduledJob{Key: key, Kind: models.JobOneShot, FireAt: at, Payload: key + " text"}
}

func TestReplaceOneShotKeepsSingleJob(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	first, err := repo.ReplaceOneShot(ctx, oneShot("w1", base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("ReplaceOneShot: %v", err)
	}
	second, err := repo.ReplaceOneShot(ctx, oneShot("w1", base.Add(48*time.Hour)))
	if err != nil {
		t.Fatalf("ReplaceOneShot (again): %v", err)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("replacement seq %d should be > %d", second.Seq, first.Seq)
	}

	jobs, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	if !jobs[0].FireAt.Equal(base.Add(48*time.Hour)) || jobs[0].Seq != second.Seq {
		t.Fatalf("pending job = %+v, want the replacement", jobs[0])
	}
	if jobs[0].Kind != models.JobOneShot || jobs[0].Payload != "w1 text" {
		t.Fatalf("kind/payload mismatch: %+v", jobs[0])
	}
}

func TestInsertIfAbsentKeepsExisting(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	job := models.ScheduledJob{Key: "daily", Kind: models.JobPeriodic, FireAt: base, Period: 24 * time.Hour}
	got, created, err := repo.InsertIfAbsent(ctx, job)
	if err != nil || !created {
		t.Fatalf("first InsertIfAbsent: created=%v err=%v", created, err)
	}
	if got.Period != 24*time.Hour {
		t.Fatalf("period = %v", got.Period)
	}

	job.FireAt = base.Add(6 * time.Hour)
	again, created, err := repo.InsertIfAbsent(ctx, job)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("second InsertIfAbsent should not create")
	}
	if again.Seq != got.Seq || !again.FireAt.Equal(base) {
		t.Fatalf("existing job changed: %+v", again)
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	if err := repo.Remove(context.Background(), "nothing"); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
}

func TestRemoveBySeqSkipsReplacedJob(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	stale, _ := repo.ReplaceOneShot(ctx, oneShot("w1", base))
	fresh, _ := repo.ReplaceOneShot(ctx, oneShot("w1", base.Add(time.Hour)))

	ok, err := repo.RemoveBySeq(ctx, stale.Seq)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("removing a replaced job instance should report false")
	}
	ok, err = repo.RemoveBySeq(ctx, fresh.Seq)
	if err != nil || !ok {
		t.Fatalf("RemoveBySeq(fresh) = %v, %v", ok, err)
	}
}

func TestDueJobsOrdering(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	repo.ReplaceOneShot(ctx, oneShot("b", base))
	repo.ReplaceOneShot(ctx, oneShot("a", base))
	repo.ReplaceOneShot(ctx, oneShot("early", base.Add(-time.Hour)))
	repo.ReplaceOneShot(ctx, oneShot("future", base.Add(time.Minute)))

	jobs, err := repo.DueJobs(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, j := range jobs {
		keys = append(keys, j.Key)
	}
	want := []string{"early", "b", "a"}
	if len(keys) != len(want) {
		t.Fatalf("due keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("due keys = %v, want %v (fire_at, then FIFO)", keys, want)
		}
	}
}

func TestUpdateFireAt(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	job, _, _ := repo.InsertIfAbsent(ctx, models.ScheduledJob{Key: "daily", Kind: models.JobPeriodic, FireAt: base, Period: 24 * time.Hour})
	ok, err := repo.UpdateFireAt(ctx, job.Seq, base.Add(24*time.Hour))
	if err != nil || !ok {
		t.Fatalf("UpdateFireAt = %v, %v", ok, err)
	}
	got, err := repo.Get(ctx, "daily")
	if err != nil {
		t.Fatal(err)
	}
	if !got.FireAt.Equal(base.Add(24 * time.Hour)) {
		t.Fatalf("fire_at = %v", got.FireAt)
	}
	if ok, _ := repo.UpdateFireAt(ctx, 9999, base); ok {
		t.Fatal("UpdateFireAt on missing seq should report false")
	}
}

func TestGetMissingJob(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	if _, err := repo.Get(context.Background(), "none"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoveAllJobs(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	repo.ReplaceOneShot(ctx, oneShot("w1", base))
	repo.InsertIfAbsent(ctx, models.ScheduledJob{Key: "daily", Kind: models.JobPeriodic, FireAt: base, Period: 24 * time.Hour})
	if err := repo.RemoveAll(ctx); err != nil {
		t.Fatal(err)
	}
	jobs, _ := repo.List(ctx)
	if len(jobs) != 0 {
		t.Fatalf("got %d jobs after RemoveAll", len(jobs))
	}
}

func TestJobsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	first, err := Connect(DriverSQLite, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewJobRepository(first).ReplaceOneShot(context.Background(), oneShot("w1", base)); err != nil {
		t.Fatal(err)
	}
	first.Close()

	jobs, err := NewJobRepository(openTestDB(t, path)).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Key != "w1" {
		t.Fatalf("jobs after reopen = %+v", jobs)
	}
}

func TestJobStoreUnavailable(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobRepository(db)
	db.Close()

	if _, err := repo.ReplaceOneShot(context.Background(), oneShot("w1", base)); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestMessageRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.db")
	repo := NewMessageRepository(openTestDB(t, path))
	ctx := context.Background()

	if _, _, err := repo.LastMessage(ctx, "daily_catchup"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := repo.RememberMessage(ctx, "daily_catchup", 100, 7); err != nil {
		t.Fatal(err)
	}
	if err := repo.RememberMessage(ctx, "daily_catchup", 100, 9); err != nil {
		t.Fatal(err)
	}

	// A fresh connection sees the latest message, as after a restart.
	reopened := NewMessageRepository(openTestDB(t, path))
	chatID, msgID, err := reopened.LastMessage(ctx, "daily_catchup")
	if err != nil || chatID != 100 || msgID != 9 {
		t.Fatalf("LastMessage = %d, %d, %v; want 100, 9", chatID, msgID, err)
	}
}
