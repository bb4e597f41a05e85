package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/staybook/internal/config"
)

const (
	JobRollupReconcile = "rollup_reconcile"
	JobMessageCleanup  = "processed_message_cleanup"
	JobCloseDay        = "close_day"
)

// Config controls scheduler intervals and job selection.
type Config struct {
	Enabled            bool
	RunInterval        time.Duration
	JobTimeout         time.Duration
	ReconcileLookback  int
	RetentionDays      int
	CloseDayCron       string
	EnabledJobs        []string
	LeaderLockEnabled  bool
	LeaderLockAddr     string
	LeaderLockPassword string
}

func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RunInterval:       15 * time.Minute,
		JobTimeout:        2 * time.Minute,
		ReconcileLookback: 2,
		RetentionDays:     30,
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
	if c.ReconcileLookback < 0 {
		c.ReconcileLookback = defaults.ReconcileLookback
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = defaults.RetentionDays
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	sc := cfg.Scheduler
	return Config{
		Enabled:            sc.Enabled,
		RunInterval:        sc.RunInterval,
		JobTimeout:         sc.JobTimeout,
		ReconcileLookback:  sc.ReconcileLookback,
		CloseDayCron:       strings.TrimSpace(sc.CloseDayCron),
		EnabledJobs:        sc.EnabledJobs,
		LeaderLockEnabled:  sc.LeaderLockEnabled,
		LeaderLockAddr:     sc.LeaderLockRedisAddr,
		LeaderLockPassword: cfg.RateLimit.RedisPassword,
	}.withDefaults()
}
