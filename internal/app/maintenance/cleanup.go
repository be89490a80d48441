package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/tradepost/internal/services"
	"github.com/charlesng35/tradepost/pkg/logger"
)

const (
	defaultPermissionSpec = "@hourly"
	defaultRetentionSpec  = "@daily"
	defaultLimiterSpec    = "@every 5m"
	defaultLimiterWindow  = 15 * time.Minute
)

// LimiterSweeper drops idle rate limiter keys. Only process-local limiters need sweeping.
type LimiterSweeper interface {
	Sweep(window time.Duration) int
}

// Cleaner coordinates background maintenance: deleting expired contact permissions, enforcing
// security log retention, and pruning idle in-memory limiter keys.
type Cleaner struct {
	permissions *services.PermissionStore
	securityLog *services.SecurityLog
	limiter     LimiterSweeper
	cron        *cron.Cron
	now         func() time.Time
	log         *zap.Logger
	retention   int

	limiterWindow      time.Duration
	permissionSchedule string
	retentionSchedule  string
	limiterSchedule    string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSecurityLogRetentionDays enables security log retention. Zero keeps entries forever.
func WithSecurityLogRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithLimiter enables periodic sweeping of an in-memory limiter. window should be the longest
// window the limiter is used with.
func WithLimiter(limiter LimiterSweeper, window time.Duration) Option {
	return func(cleaner *Cleaner) {
		cleaner.limiter = limiter
		if window > 0 {
			cleaner.limiterWindow = window
		}
	}
}

// WithPermissionSchedule overrides the cron specification for the expired permission sweep.
func WithPermissionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.permissionSchedule = spec
		}
	}
}

// WithRetentionSchedule overrides the cron specification for security log retention.
func WithRetentionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.retentionSchedule = spec
		}
	}
}

// WithLimiterSchedule overrides the cron specification for the limiter sweep.
func WithLimiterSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.limiterSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. Any nil dependency results in the corresponding job being skipped.
func NewCleaner(permissions *services.PermissionStore, securityLog *services.SecurityLog, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		permissions:        permissions,
		securityLog:        securityLog,
		now:                time.Now,
		limiterWindow:      defaultLimiterWindow,
		permissionSchedule: defaultPermissionSpec,
		retentionSchedule:  defaultRetentionSpec,
		limiterSchedule:    defaultLimiterSpec,
		log:                logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.permissions != nil {
		if _, err := c.cron.AddFunc(c.permissionSchedule, func() {
			if _, err := c.sweepPermissions(context.Background()); err != nil {
				c.log.Warn("expired permission sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.securityLog != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.retentionSchedule, func() {
			if _, err := c.enforceRetention(context.Background()); err != nil {
				c.log.Warn("security log retention failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.limiter != nil {
		if _, err := c.cron.AddFunc(c.limiterSchedule, func() {
			c.limiter.Sweep(c.limiterWindow)
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.permissions != nil {
		if _, err := c.sweepPermissions(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.securityLog != nil && c.retention > 0 {
		if _, err := c.enforceRetention(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.limiter != nil {
		c.limiter.Sweep(c.limiterWindow)
	}

	return errs
}

func (c *Cleaner) sweepPermissions(ctx context.Context) (int64, error) {
	removed, err := c.permissions.DeleteExpired(ctx, c.now().UTC())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Info("expired contact permissions removed", zap.Int64("count", removed))
	}
	return removed, nil
}

func (c *Cleaner) enforceRetention(ctx context.Context) (int64, error) {
	cutoff := c.now().UTC().AddDate(0, 0, -c.retention)
	removed, err := c.securityLog.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Info("security log entries purged", zap.Int64("count", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}
