package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrNotFound is returned when a word or job does not exist
	ErrNotFound = errors.New("not found")
	// ErrStorageUnavailable is returned when the database cannot be reached
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// wrapErr annotates err with op and classifies it against the sentinels
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUnavailable reports connection-level failures, as opposed to bad queries
func isUnavailable(err error) bool {
	if errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if isTransientSQLiteErr(err) {
		return true
	}
	msg := err.Error()
	for _, pattern := range []string{
		"database is closed",
		"connection refused",
		"bad connection",
		"unable to open database file",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
