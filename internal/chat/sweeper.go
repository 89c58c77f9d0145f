package chat

import (
	"context"
	"log/slog"
	"time"
)

const sweepInterval = 5 * time.Minute

// IdlePurger removes durable device state that has not been touched within ttl.
type IdlePurger interface {
	PurgeIdle(ctx context.Context, ttl time.Duration) (int64, error)
}

// SweepConfig controls the idle sweeper.
type SweepConfig struct {
	Interval      time.Duration
	ControllerTTL time.Duration // in-memory conversations
	DeviceTTL     time.Duration // durable session state
}

// EvictCallback is called for every device whose controller was evicted.
type EvictCallback func(deviceID string)

// StartIdleSweeper runs a background goroutine that periodically evicts idle
// controllers and purges stale device state until ctx is done.
func StartIdleSweeper(ctx context.Context, reg *Registry, purger IdlePurger, cfg SweepConfig, onEvict EvictCallback) {
	if cfg.Interval <= 0 {
		cfg.Interval = sweepInterval
	}
	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Idle sweeper started", "interval", cfg.Interval, "controller_ttl", cfg.ControllerTTL, "device_ttl", cfg.DeviceTTL)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, reg, purger, cfg, onEvict)
			case <-ctx.Done():
				slog.Info("Idle sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, reg *Registry, purger IdlePurger, cfg SweepConfig, onEvict EvictCallback) {
	if cfg.ControllerTTL > 0 {
		evicted := reg.EvictIdle(cfg.ControllerTTL)
		for _, deviceID := range evicted {
			if onEvict != nil {
				onEvict(deviceID)
			}
		}
		if len(evicted) > 0 {
			slog.Info("Idle sweeper evicted conversations", "count", len(evicted))
		}
	}

	if purger == nil || cfg.DeviceTTL <= 0 {
		return
	}
	deleted, err := purger.PurgeIdle(ctx, cfg.DeviceTTL)
	if err != nil {
		slog.Error("Idle sweeper failed to purge device state", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Idle sweeper purged device state", "rows", deleted)
	}
}
