package scheduler

import (
	"time"

	"github.com/smallbiznis/airtax/internal/config"
)

const (
	JobRuleSnapshotRefresh = "rule_snapshot_refresh"
	JobRateCacheWarm       = "rate_cache_warm"
)

// Config controls scheduler intervals and job selection.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	LockTTL     time.Duration
	// EnabledJobs limits the jobs run on each tick; empty runs all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		JobTimeout:  30 * time.Second,
		LockTTL:     30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.SnapshotRefreshInterval,
		LockTTL:     cfg.RateWarmLockTTL,
		EnabledJobs: cfg.SchedulerJobs,
	}.withDefaults()
}
