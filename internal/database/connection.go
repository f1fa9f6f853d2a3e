package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported driver names
const (
	DriverSQLite   = "sqlite"  // modernc.org/sqlite, pure Go
	DriverSQLite3  = "sqlite3" // github.com/mattn/go-sqlite3, cgo
	DriverPostgres = "postgres"
)

// Connect opens the database and initializes the schema
func Connect(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, DriverSQLite3:
		// Create data directory if it doesn't exist
		if dir := filepath.Dir(sqlitePath(dsn)); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dsn = sqliteDSN(driver, dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w: %w", ErrStorageUnavailable, err)
	}

	if driver != DriverPostgres {
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// sqlitePath strips the query string from a SQLite DSN
func sqlitePath(dsn string) string {
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		return dsn[:i]
	}
	return dsn
}

// sqliteDSN adds a busy timeout so a locked database fails fast instead of hanging
func sqliteDSN(driver, dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	if driver == DriverSQLite3 {
		return dsn + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}
	return dsn + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	// Create words table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS words (
			id TEXT PRIMARY KEY,
			term TEXT NOT NULL,
			definition TEXT NOT NULL DEFAULT '',
			tier INTEGER NOT NULL DEFAULT 0,
			due_at BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			last_answered_at BIGINT,
			correct_count INTEGER NOT NULL DEFAULT 0,
			incorrect_count INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create words table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_words_due ON words(due_at)`)
	if err != nil {
		return fmt.Errorf("failed to create words index: %w", err)
	}

	// Create scheduled_jobs table. job_key is unique: one pending job per key.
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.DriverName() == DriverPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id ` + idColumn + `,
			job_key TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			fire_at BIGINT NOT NULL,
			period_ms BIGINT NOT NULL DEFAULT 0,
			payload TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create scheduled_jobs table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_fire ON scheduled_jobs(fire_at, id)`)
	if err != nil {
		return fmt.Errorf("failed to create scheduled_jobs index: %w", err)
	}

	// Create notification_messages table: last chat message sent per notification ID
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS notification_messages (
			notification_id TEXT PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			message_id BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create notification_messages table: %w", err)
	}

	return nil
}
