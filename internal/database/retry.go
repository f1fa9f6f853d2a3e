package database

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// contentionPolicy bounds how long a write waits out a locked SQLite database
type contentionPolicy struct {
	attempts int // total tries, the first one included
	base     time.Duration
	ceiling  time.Duration
}

var writePolicy = contentionPolicy{
	attempts: 4,
	base:     50 * time.Millisecond,
	ceiling:  500 * time.Millisecond,
}

// isTransientSQLiteErr reports lock contention that goes away on its own
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryOnContention runs a repository write under writePolicy
func retryOnContention(ctx context.Context, write func() error) error {
	return writePolicy.run(ctx, write)
}

// run calls write until it succeeds, fails with a non-contention error, the
// attempts are used up, or ctx is done. Waiting stops as soon as ctx is done.
func (p contentionPolicy) run(ctx context.Context, write func() error) error {
	var err error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if err = write(); err == nil || !isTransientSQLiteErr(err) {
			return err
		}
		if attempt == p.attempts-1 {
			break
		}

		timer := time.NewTimer(p.wait(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

// wait is base doubled per attempt, capped at ceiling, plus up to base of jitter
func (p contentionPolicy) wait(attempt int) time.Duration {
	d := p.base << uint(attempt)
	if d <= 0 || d > p.ceiling {
		d = p.ceiling
	}
	return d + time.Duration(rand.Int63n(int64(p.base)))
}
