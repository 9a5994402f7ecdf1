package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/cache"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/metrics"
)

const (
	defaultOTPSpec   = "@every 5m"
	defaultCacheSpec = "@every 15m"

	jobOTP   = "otp"
	jobCache = "cache"
)

// Cleaner coordinates background maintenance tasks: purging expired OTP challenges and expired
// cache rows. Redis-backed stores expire on their own and are simply not registered.
type Cleaner struct {
	otps  cache.Purger
	cache cache.Purger
	cron  *cron.Cron
	now   func() time.Time
	log   *zap.Logger

	otpSchedule   string
	cacheSchedule string
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

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithOTPSchedule overrides the cron specification for OTP cleanup.
func WithOTPSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.otpSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache cleanup.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil purger skips the corresponding job.
func NewCleaner(otps, cacheStore cache.Purger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		otps:          otps,
		cache:         cacheStore,
		now:           time.Now,
		otpSchedule:   defaultOTPSpec,
		cacheSchedule: defaultCacheSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	if c.otps == nil && c.cache == nil {
		return nil
	}

	if c.otps != nil {
		if _, err := c.cron.AddFunc(c.otpSchedule, func() {
			if err := c.purge(context.Background(), jobOTP, c.otps); err != nil {
				c.log.Warn("otp cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule otp cleanup: %w", err)
		}
	}

	if c.cache != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if err := c.purge(context.Background(), jobCache, c.cache); err != nil {
				c.log.Warn("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule cache cleanup: %w", err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, returning a context that is done once running jobs complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.otps != nil {
		errs = multierr.Append(errs, c.purge(ctx, jobOTP, c.otps))
	}
	if c.cache != nil {
		errs = multierr.Append(errs, c.purge(ctx, jobCache, c.cache))
	}
	return errs
}

func (c *Cleaner) purge(ctx context.Context, job string, p cache.Purger) error {
	removed, err := p.PurgeExpired(ctx, c.now())
	if err != nil {
		return fmt.Errorf("purge %s: %w", job, err)
	}
	if removed > 0 {
		metrics.MaintenancePurged.WithLabelValues(job).Add(float64(removed))
		c.log.Debug("purged expired entries", zap.String("job", job), zap.Int64("removed", removed))
	}
	return nil
}
