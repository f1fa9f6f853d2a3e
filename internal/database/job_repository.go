package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/example/wordforge/pkg/models"
)

var jobColumns = []string{"id", "job_key", "kind", "fire_at", "period_ms", "payload"}

type jobRow struct {
	ID       int64  `db:"id"`
	Key      string `db:"job_key"`
	Kind     string `db:"kind"`
	FireAt   int64  `db:"fire_at"`
	PeriodMs int64  `db:"period_ms"`
	Payload  string `db:"payload"`
}

func (r jobRow) toModel() models.ScheduledJob {
	return models.ScheduledJob{
		Seq:     r.ID,
		Key:     r.Key,
		Kind:    models.JobKind(r.Kind),
		FireAt:  time.UnixMilli(r.FireAt),
		Period:  time.Duration(r.PeriodMs) * time.Millisecond,
		Payload: r.Payload,
	}
}

// JobRepository is the durable store of pending scheduled jobs.
// job_key is unique, so a key never has more than one pending job.
type JobRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewJobRepository creates a new repository instance
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db, sb: statementBuilder(db)}
}

const insertJobSQL = `
	INSERT INTO scheduled_jobs (job_key, kind, fire_at, period_ms, payload)
	VALUES (?, ?, ?, ?, ?)`

// ReplaceOneShot deletes any job under job.Key and inserts job in one transaction.
// The returned job carries the store-assigned Seq.
func (r *JobRepository) ReplaceOneShot(ctx context.Context, job models.ScheduledJob) (models.ScheduledJob, error) {
	job.Kind = models.JobOneShot
	job.Period = 0

	err := retryOnContention(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM scheduled_jobs WHERE job_key = ?"), job.Key); err != nil {
			return err
		}
		if err := tx.QueryRowxContext(ctx, tx.Rebind(insertJobSQL+" RETURNING id"),
			job.Key,
			string(job.Kind),
			job.FireAt.UnixMilli(),
			int64(0),
			job.Payload,
		).Scan(&job.Seq); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return models.ScheduledJob{}, wrapErr("replace job "+job.Key, err)
	}
	return job, nil
}

// InsertIfAbsent inserts job unless a job with the same key is pending.
// It returns the pending job and whether it was created by this call.
func (r *JobRepository) InsertIfAbsent(ctx context.Context, job models.ScheduledJob) (models.ScheduledJob, bool, error) {
	query := r.db.Rebind(insertJobSQL + " ON CONFLICT (job_key) DO NOTHING RETURNING id")
	created := false
	err := retryOnContention(ctx, func() error {
		err := r.db.QueryRowxContext(ctx, query,
			job.Key,
			string(job.Kind),
			job.FireAt.UnixMilli(),
			job.Period.Milliseconds(),
			job.Payload,
		).Scan(&job.Seq)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err == nil {
			created = true
		}
		return err
	})
	if err != nil {
		return models.ScheduledJob{}, false, wrapErr("insert job "+job.Key, err)
	}
	if created {
		return job, true, nil
	}
	existing, err := r.Get(ctx, job.Key)
	if err != nil {
		return models.ScheduledJob{}, false, err
	}
	return existing, false, nil
}

// Get returns the pending job for key, or ErrNotFound
func (r *JobRepository) Get(ctx context.Context, key string) (models.ScheduledJob, error) {
	query, args, err := r.sb.Select(jobColumns...).From("scheduled_jobs").Where(sq.Eq{"job_key": key}).ToSql()
	if err != nil {
		return models.ScheduledJob{}, fmt.Errorf("build job query: %w", err)
	}
	var row jobRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return models.ScheduledJob{}, wrapErr("get job "+key, err)
	}
	return row.toModel(), nil
}

// Remove deletes the pending job for key. Missing keys are not an error.
func (r *JobRepository) Remove(ctx context.Context, key string) error {
	query := r.db.Rebind("DELETE FROM scheduled_jobs WHERE job_key = ?")
	err := retryOnContention(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, key)
		return err
	})
	return wrapErr("remove job "+key, err)
}

// RemoveBySeq deletes exactly the job instance seq. It reports false when that
// instance is gone, e.g. it was replaced or cancelled after being read.
func (r *JobRepository) RemoveBySeq(ctx context.Context, seq int64) (bool, error) {
	query := r.db.Rebind("DELETE FROM scheduled_jobs WHERE id = ?")
	var affected int64
	err := retryOnContention(ctx, func() error {
		result, err := r.db.ExecContext(ctx, query, seq)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, wrapErr(fmt.Sprintf("remove job #%d", seq), err)
	}
	return affected > 0, nil
}

// RemoveAll deletes every pending job of every kind
func (r *JobRepository) RemoveAll(ctx context.Context) error {
	err := retryOnContention(ctx, func() error {
		_, err := r.db.ExecContext(ctx, "DELETE FROM scheduled_jobs")
		return err
	})
	return wrapErr("remove all jobs", err)
}

// UpdateFireAt moves job instance seq to fireAt
func (r *JobRepository) UpdateFireAt(ctx context.Context, seq int64, fireAt time.Time) (bool, error) {
	query := r.db.Rebind("UPDATE scheduled_jobs SET fire_at = ? WHERE id = ?")
	var affected int64
	err := retryOnContention(ctx, func() error {
		result, err := r.db.ExecContext(ctx, query, fireAt.UnixMilli(), seq)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, wrapErr(fmt.Sprintf("update job #%d", seq), err)
	}
	return affected > 0, nil
}

// DueJobs returns jobs with fire_at <= asOf in firing order (fire_at, then FIFO)
func (r *JobRepository) DueJobs(ctx context.Context, asOf time.Time) ([]models.ScheduledJob, error) {
	builder := r.sb.Select(jobColumns...).
		From("scheduled_jobs").
		Where(sq.LtOrEq{"fire_at": asOf.UnixMilli()})
	return r.selectJobs(ctx, builder, "list due jobs")
}

// List returns every pending job in firing order
func (r *JobRepository) List(ctx context.Context) ([]models.ScheduledJob, error) {
	return r.selectJobs(ctx, r.sb.Select(jobColumns...).From("scheduled_jobs"), "list jobs")
}

func (r *JobRepository) selectJobs(ctx context.Context, builder sq.SelectBuilder, op string) ([]models.ScheduledJob, error) {
	query, args, err := builder.OrderBy("fire_at ASC", "id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", op, err)
	}
	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapErr(op, err)
	}
	jobs := make([]models.ScheduledJob, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.toModel())
	}
	return jobs, nil
}
