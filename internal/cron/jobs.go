package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Evictor drops conversations idle longer than maxIdle. Implemented by
// chat.Service; declared here to keep this package free of chat imports.
type Evictor interface {
	EvictIdle(maxIdle time.Duration) int
}

// ModelRefresher re-fetches the provider's model listing.
type ModelRefresher interface {
	RefreshModels(ctx context.Context) error
}

// EvictionJob releases the live sessions of idle conversations. Their
// history stays stored; the next Open starts a fresh session.
type EvictionJob struct {
	Evictor      Evictor
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*EvictionJob)(nil)

// Name implements Job.
func (j *EvictionJob) Name() string { return "conversation_eviction" }

// Schedule implements Job.
func (j *EvictionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run evicts conversations idle longer than MaxIdle.
func (j *EvictionJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: eviction cancelled: %w", ctx.Err())
	}
	if n := j.Evictor.EvictIdle(j.MaxIdle); n > 0 {
		j.logger().Info("cron: evicted idle conversations", "count", n, "max_idle", j.MaxIdle)
	}
	return nil
}

func (j *EvictionJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

// ModelRefreshJob keeps the cached model listing warm so pickers never
// wait on the provider.
type ModelRefreshJob struct {
	Refresher    ModelRefresher
	Timeout      time.Duration // zero = 30s
	ScheduleExpr string        // empty = default "*/30 * * * *"
}

// Compile-time interface check.
var _ Job = (*ModelRefreshJob)(nil)

// Name implements Job.
func (j *ModelRefreshJob) Name() string { return "model_refresh" }

// Schedule implements Job.
func (j *ModelRefreshJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/30 * * * *"
}

// Run refreshes the model listing.
func (j *ModelRefreshJob) Run(ctx context.Context) error {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := j.Refresher.RefreshModels(ctx); err != nil {
		return fmt.Errorf("cron: refreshing models: %w", err)
	}
	return nil
}

// Sweeper discards stale rate-limit state. Implemented by
// security.RateLimiter.
type Sweeper interface {
	Sweep() int
}

// RateLimitSweepJob drops the request history of clients that have gone
// quiet so the limiter does not grow with every address it has seen.
type RateLimitSweepJob struct {
	Sweeper      Sweeper
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

// Compile-time interface check.
var _ Job = (*RateLimitSweepJob)(nil)

// Name implements Job.
func (j *RateLimitSweepJob) Name() string { return "rate_limit_sweep" }

// Schedule implements Job.
func (j *RateLimitSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run sweeps the limiter.
func (j *RateLimitSweepJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: rate limit sweep cancelled: %w", ctx.Err())
	}
	if n := j.Sweeper.Sweep(); n > 0 {
		logger := j.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Debug("cron: swept rate limit buckets", "count", n)
	}
	return nil
}
