package store

import (
	"log/slog"
	"strings"
	"time"
)

// isSQLiteConflict checks for SQLITE_BUSY / "database is locked" errors.
// These are transient concurrency errors that warrant a retry.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "SQLITE_BUSY") || strings.Contains(s, "database is locked")
}

// withBusyRetry runs op, retrying with short exponential delays when SQLite
// reports a lock conflict. Non-conflict errors are returned immediately.
func withBusyRetry(name string, op func() error) error {
	const maxRetries = 3
	delay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil || !isSQLiteConflict(err) {
			return err
		}
		if i < maxRetries-1 {
			slog.Debug("SQLite conflict, retrying", "op", name, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
