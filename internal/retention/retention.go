// Package retention periodically purges resolved review-queue items that
// are older than the configured holding period.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"modchat/pkg/config"
	"modchat/pkg/logger"
	"modchat/pkg/metrics"
	"modchat/pkg/store"
)

const defaultCron = "0 2 * * *"

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, ret config.RetentionConfig) (context.CancelFunc, error) {
	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	if ret.Period.Duration() <= 0 {
		return nil, fmt.Errorf("retention enabled but period is not set")
	}

	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", ret.Period.Duration().String(), "dry_run", ret.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, ret, cronExpr)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, ret config.RetentionConfig, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(ret); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single purge pass. Exposed so admin tooling and
// tests can trigger retention outside the schedule.
func RunOnce(ret config.RetentionConfig) error {
	cutoff := time.Now().UTC().Add(-ret.Period.Duration()).UnixNano()
	batch := ret.BatchSize
	if batch <= 0 {
		batch = 500
	}
	n, err := store.PurgeResolvedBefore(cutoff, batch, ret.DryRun)
	if err != nil {
		return err
	}
	if ret.DryRun {
		logger.Info("retention_dry_run", "would_purge", n)
		return nil
	}
	if n > 0 {
		metrics.RetentionPurged.Add(float64(n))
		logger.AuditEvent("retention_purged", "count", n, "cutoff", cutoff)
	} else {
		logger.Debug("retention_noop")
	}
	return nil
}
