package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/airtax/internal/clock"
	"github.com/smallbiznis/airtax/internal/config"
	"github.com/smallbiznis/airtax/internal/currency"
	obsmetrics "github.com/smallbiznis/airtax/internal/observability/metrics"
	"github.com/smallbiznis/airtax/internal/ratelimit"
	"github.com/smallbiznis/airtax/internal/scheduler/guard"
	"github.com/smallbiznis/airtax/internal/taxrule/snapshot"
	"github.com/smallbiznis/airtax/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log       *zap.Logger
	Snapshots *snapshot.Store
	Holder    *config.NationConfigHolder
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    Config `optional:"true"`

	Rates        *currency.RedisRates         `optional:"true"`
	Locker       *ratelimit.Locker            `optional:"true"`
	Metrics      *telemetry.Metrics           `optional:"true"`
	OtelMetrics  *obsmetrics.Metrics          `optional:"true"`
	SchedMetrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	snapshots    *snapshot.Store
	holder       *config.NationConfigHolder
	rates        *currency.RedisRates
	locker       *ratelimit.Locker
	telemetry    *telemetry.Metrics
	otel         *obsmetrics.Metrics
	schedMetrics *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Snapshots == nil || p.Holder == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	log := p.Log.Named("scheduler").With(zap.String("component", "scheduler"))
	cfg := p.Config.withDefaults()
	if err := guard.EnsureLockCoversJob(cfg.LockTTL, cfg.JobTimeout); err != nil {
		log.Warn("lock ttl raised to job timeout", zap.Duration("lock_ttl", cfg.LockTTL), zap.Duration("job_timeout", cfg.JobTimeout))
		cfg.LockTTL = cfg.JobTimeout
	}
	return &Scheduler{
		log:          log,
		cfg:          cfg,
		genID:        p.GenID,
		clock:        p.Clock,
		snapshots:    p.Snapshots,
		holder:       p.Holder,
		rates:        p.Rates,
		locker:       p.Locker,
		telemetry:    p.Metrics,
		otel:         p.OtelMetrics,
		schedMetrics: p.SchedMetrics,
	}, nil
}

func (s *Scheduler) metrics() *obsmetrics.SchedulerMetrics {
	if s.schedMetrics != nil {
		return s.schedMetrics
	}
	return obsmetrics.Scheduler()
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(zap.String("job", name))
	schedMetrics := s.metrics()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// a deadline is a soft timeout; the next tick picks the work up again
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobRuleSnapshotRefresh, s.RuleSnapshotRefreshJob},
		{JobRateCacheWarm, s.RateCacheWarmJob},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := s.metrics()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// RuleSnapshotRefreshJob reloads the tax rules and swaps the snapshot the
// evaluators read. A snapshot refreshed less than half an interval ago is
// left alone.
func (s *Scheduler) RuleSnapshotRefreshJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRuleSnapshotRefresh)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	if current := s.snapshots.Current(); current != nil {
		if err := guard.EnsureRefreshDue(current.LoadedAt(), s.clock.Now(), s.cfg.RunInterval/2); err != nil {
			run.Defer(obsmetrics.SchedulerDeferredReasonNotDue)
			s.metrics().IncBatchDeferred(run.job, obsmetrics.SchedulerDeferredReasonNotDue)
			return nil
		}
	}

	n, err := s.snapshots.Refresh(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.snapshot.refresh.failed", err)
		return err
	}
	run.AddProcessed(n)
	s.metrics().AddBatchProcessed(run.job, "rules", n)
	s.telemetry.SetSnapshotRules(n)
	return nil
}

// RateCacheWarmJob loads today's rate of every configured currency into the
// rate cache. Only one instance warms per tick.
func (s *Scheduler) RateCacheWarmJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRateCacheWarm)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	if s.rates == nil {
		run.Defer(obsmetrics.SchedulerDeferredReasonNoCache)
		s.metrics().IncBatchDeferred(run.job, obsmetrics.SchedulerDeferredReasonNoCache)
		return nil
	}
	currencies := currencyCodes(s.holder.Get())
	if err := guard.EnsureCurrenciesToWarm(currencies); err != nil {
		s.logger(ctx).Debug("nothing to warm", zap.Error(err))
		return nil
	}

	date := s.clock.Now()
	_, err := s.withJobLock(ctx, run, func(ctx context.Context) error {
		warmed, err := s.rates.Warm(ctx, currencies, date)
		run.AddProcessed(warmed)
		s.metrics().AddBatchProcessed(run.job, "rates", warmed)
		s.otel.RecordRateCacheWarmed(ctx, warmed)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.rates.warm.failed", err,
				zap.Int("warmed", warmed),
				zap.Int("currencies", len(currencies)),
			)
		}
		return err
	})
	return err
}

func currencyCodes(cfg config.TaxConfig) []string {
	out := make([]string, 0, len(cfg.Currencies))
	for code := range cfg.Currencies {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
