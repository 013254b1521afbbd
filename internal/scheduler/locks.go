package scheduler

import (
	"context"

	obsmetrics "github.com/smallbiznis/airtax/internal/observability/metrics"
)

const lockKeyPrefix = "airtax:scheduler:lock:"

// withJobLock runs fn while holding the job's cluster-wide lock so only one
// instance does the work per tick. Without a locker fn runs unguarded.
func (s *Scheduler) withJobLock(ctx context.Context, run *jobRun, fn func(context.Context) error) (bool, error) {
	if s.locker == nil {
		return true, fn(ctx)
	}
	held, err := s.locker.WithLock(ctx, lockKeyPrefix+run.job, s.cfg.LockTTL, fn)
	if err == nil && !held {
		run.Defer(obsmetrics.SchedulerDeferredReasonLockHeld)
		s.metrics().IncBatchDeferred(run.job, obsmetrics.SchedulerDeferredReasonLockHeld)
	}
	return held, err
}
