package guard

import (
	"errors"
	"time"
)

var (
	ErrRefreshNotDue = errors.New("snapshot_refresh_not_due")
	ErrNoCurrencies  = errors.New("no_currencies_to_warm")
	ErrInvalidTTL    = errors.New("invalid_lock_ttl")
	ErrLockTooShort  = errors.New("lock_ttl_shorter_than_job_timeout")
)

// EnsureRefreshDue rejects a refresh while the current snapshot is younger
// than minAge. A snapshot that never loaded is always due.
func EnsureRefreshDue(loadedAt, now time.Time, minAge time.Duration) error {
	if loadedAt.IsZero() {
		return nil
	}
	if now.Sub(loadedAt) < minAge {
		return ErrRefreshNotDue
	}
	return nil
}

func EnsureCurrenciesToWarm(currencies []string) error {
	if len(currencies) == 0 {
		return ErrNoCurrencies
	}
	return nil
}

// EnsureLockCoversJob requires the lock to outlive the job holding it.
func EnsureLockCoversJob(lockTTL, jobTimeout time.Duration) error {
	if lockTTL <= 0 {
		return ErrInvalidTTL
	}
	if lockTTL < jobTimeout {
		return ErrLockTooShort
	}
	return nil
}
