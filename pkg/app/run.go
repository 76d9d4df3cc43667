package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flemzord/rolechat/internal/cron"
	"github.com/flemzord/rolechat/internal/gateway"
	"github.com/flemzord/rolechat/internal/reload"
)

const shutdownTimeout = 10 * time.Second

// Serve starts the gateway, the background jobs and the reload loop, and
// blocks until ctx is cancelled. SIGHUP and edits to the config file
// trigger a live reload.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config

	gw, err := gateway.New(gateway.Options{
		Config: gateway.Config{
			Bind:      cfg.Gateway.Bind,
			BasicUser: cfg.Gateway.Auth.BasicUser,
		},
		Service:     a.Service,
		Credentials: a.Credentials,
		Limiter:     a.Limiter,
		Audit:       a.Audit,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
		Version:     a.Version,
	})
	if err != nil {
		return err
	}

	sched := cron.NewScheduler(a.Logger)
	jobs := []cron.Job{
		&cron.EvictionJob{
			Evictor:      a.Service,
			MaxIdle:      cfg.Chat.IdleTimeout,
			Logger:       a.Logger,
			ScheduleExpr: cfg.Cron.Eviction,
		},
		&cron.ModelRefreshJob{
			Refresher:    a.Service,
			ScheduleExpr: cfg.Cron.ModelRefresh,
		},
		&cron.RateLimitSweepJob{Sweeper: a.Limiter, Logger: a.Logger},
	}
	for _, j := range jobs {
		if err := sched.RegisterJob(j); err != nil {
			return err
		}
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("app: starting scheduler: %w", err)
	}

	if err := gw.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = sched.Stop(stopCtx)
		return err
	}

	// --- reload: SIGHUP and config file changes ---
	if a.ConfigPath != "" {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		watcher := reload.NewWatcher(a.ConfigPath, 0)
		watcher.Start(ctx)
		defer watcher.Stop()

		go reload.Loop(ctx, a.ReloadHandler(), watcher, hup, a.ConfigPath)
	}

	a.Logger.Info("rolechat started",
		"version", a.Version,
		"bind", cfg.Gateway.Bind,
		"characters", len(cfg.Characters),
	)
	<-ctx.Done()
	a.Logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := gw.Stop(stopCtx); err != nil {
		a.Logger.Error("gateway shutdown", "error", err)
	}
	if err := sched.Stop(stopCtx); err != nil {
		a.Logger.Error("scheduler shutdown", "error", err)
	}
	a.Logger.Info("shutdown complete")
	return nil
}

// Run builds an App from params and serves until SIGINT or SIGTERM.
func Run(params Params) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := Build(ctx, params)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.Logger.Error("closing", "error", err)
		}
	}()
	return a.Serve(ctx)
}
