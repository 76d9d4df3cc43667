// Package app assembles a running rolechat instance from configuration. It
// is shared by every rolechat command: the server, the terminal chat, the
// MCP server and the one-shot admin commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/flemzord/rolechat/internal/chat"
	"github.com/flemzord/rolechat/internal/config"
	"github.com/flemzord/rolechat/internal/memory"
	"github.com/flemzord/rolechat/internal/reload"
	"github.com/flemzord/rolechat/internal/security"
	"github.com/flemzord/rolechat/internal/telemetry"
	"github.com/flemzord/rolechat/modules/memory/sqlite"

	// Provider backends register themselves.
	_ "github.com/flemzord/rolechat/modules/provider/compatible"
	_ "github.com/flemzord/rolechat/modules/provider/native"
)

// Params select the configuration and process-level settings.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file. If
	// empty, ResolveConfigPath is tried and defaults apply when nothing is
	// found.
	ConfigPath string

	// Version is injected at build time via ldflags.
	Version string

	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer

	// Environ overrides the process environment, for tests.
	Environ map[string]string
}

// App holds every long-lived component built from the configuration.
type App struct {
	Config      *config.Config
	ConfigPath  string
	Logger      *slog.Logger
	LogLevel    *slog.LevelVar
	Credentials *security.CredentialStore
	Redactor    *security.Redactor
	Audit       *security.AuditLogger
	Limiter     *security.RateLimiter
	Store       memory.HistoryStore
	Metrics     *telemetry.Metrics
	Tracing     *telemetry.Tracing
	Service     *chat.Service
	Version     string

	closers []func(context.Context) error
}

// LoadConfig resolves, loads and validates the configuration. The
// returned path is empty when defaults were used.
func LoadConfig(params Params) (*config.Config, string, error) {
	environ := params.Environ
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}

	path := params.ConfigPath
	if path == "" {
		if resolved, err := ResolveConfigPath(); err == nil {
			path = resolved
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.Default(environ)
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Build loads the configuration and constructs the chat service with its
// supporting stack. The caller must Close the returned App.
func Build(ctx context.Context, params Params) (*App, error) {
	cfg, path, err := LoadConfig(params)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, path, params)
}

// New constructs an App from an already validated configuration.
func New(ctx context.Context, cfg *config.Config, path string, params Params) (*App, error) {
	a := &App{
		Config:      cfg,
		ConfigPath:  path,
		LogLevel:    new(slog.LevelVar),
		Credentials: security.NewCredentialStore(),
		Redactor:    security.NewRedactor(),
		Limiter:     security.NewRateLimiter(cfg.Gateway.RateLimit),
		Version:     params.Version,
	}

	// Secrets are registered before the first log line is written.
	a.Credentials.Replace(cfg.Credentials())
	a.Redactor.SyncCredentials(a.Credentials)

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	a.LogLevel.Set(reload.ParseLevel(cfg.Log.Level))
	a.Logger = NewLogger(out, cfg.Log.Format, a.LogLevel, a.Redactor)

	if err := a.build(ctx); err != nil {
		_ = a.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	auditCfg := security.AuditLoggerConfig{Redactor: a.Redactor}
	if p := cfg.AuditLogPath(); p != "" {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("app: creating audit log directory: %w", err)
		}
		f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("app: opening audit log: %w", err)
		}
		auditCfg.Writer = f
		a.closers = append(a.closers, func(context.Context) error { return f.Close() })
	}
	a.Audit = security.NewAuditLogger(auditCfg)

	if p := cfg.StoragePath(); p != "" {
		store, err := sqlite.Open(ctx, sqlite.Config{
			Path:        p,
			BusyTimeout: int(cfg.Storage.BusyTimeout.Milliseconds()),
		}, a.Logger)
		if err != nil {
			return err
		}
		a.Store = store
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	} else {
		a.Store = memory.NewInMemoryHistoryStore()
		a.Logger.Info("history kept in memory; set storage.path to persist it")
	}

	tracing, err := telemetry.NewTracing(ctx, telemetry.TracingConfig{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     a.Version,
	})
	if err != nil {
		return err
	}
	a.Tracing = tracing
	a.closers = append(a.closers, tracing.Shutdown)

	opts := chat.Options{
		Provider:       cfg.ProviderSettings(),
		Store:          a.Store,
		Characters:     cfg.CharacterList(),
		Defaults:       cfg.ChatDefaults(),
		Context:        cfg.ContextSettings(),
		ModelsTTL:      cfg.Chat.ModelsTTL,
		TracerProvider: tracing.Provider(),
		Logger:         a.Logger,
	}
	if cfg.MetricsEnabled() {
		a.Metrics = telemetry.NewMetrics()
		opts.Observer = a.Metrics
	}

	svc, err := chat.New(ctx, opts)
	if err != nil {
		return err
	}
	a.Service = svc
	a.closers = append(a.closers, func(context.Context) error {
		svc.Close()
		return nil
	})
	return nil
}

// ReloadHandler returns a handler that applies reloaded configuration to
// this App.
func (a *App) ReloadHandler() *reload.Handler {
	return reload.NewHandler(reload.HandlerOptions{
		Target:      a.Service,
		Credentials: a.Credentials,
		Redactor:    a.Redactor,
		Audit:       a.Audit,
		LogLevel:    a.LogLevel,
		Logger:      a.Logger,
	})
}

// Close releases everything Build acquired, in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
