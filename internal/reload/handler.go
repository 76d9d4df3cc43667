package reload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flemzord/rolechat/internal/config"
	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/internal/security"
)

// Reconfigurer accepts a new provider configuration. *chat.Service
// implements it.
type Reconfigurer interface {
	Reconfigure(ctx context.Context, cfg provider.Config) error
}

// HandlerOptions wire a Handler to the running server.
type HandlerOptions struct {
	Target      Reconfigurer
	Credentials *security.CredentialStore
	Redactor    *security.Redactor
	Audit       *security.AuditLogger

	// LogLevel, when set, follows log.level.
	LogLevel *slog.LevelVar

	Logger *slog.Logger
}

// Handler applies a reloaded configuration. Provider credentials, gateway
// secrets and the log level take effect immediately. Characters, storage
// and the listen address need a restart.
type Handler struct {
	opts HandlerOptions
}

// NewHandler creates a reload handler.
func NewHandler(opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{opts: opts}
}

// HandleReload loads, validates and applies the file at path. An invalid
// file leaves the running configuration untouched.
func (h *Handler) HandleReload(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return h.Apply(ctx, cfg)
}

// Apply pushes an already validated cfg to the running server.
func (h *Handler) Apply(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	if h.opts.Credentials != nil {
		h.opts.Credentials.Replace(cfg.Credentials())
		if h.opts.Redactor != nil {
			h.opts.Redactor.SyncCredentials(h.opts.Credentials)
		}
	}
	if h.opts.LogLevel != nil {
		h.opts.LogLevel.Set(ParseLevel(cfg.Log.Level))
	}

	var err error
	if h.opts.Target != nil {
		err = h.opts.Target.Reconfigure(ctx, cfg.ProviderSettings())
	}

	detail := "applied"
	if err != nil {
		detail = err.Error()
	}
	h.opts.Audit.Log(security.AuditEvent{
		Type:   security.EventConfigReload,
		Detail: detail,
		Metadata: map[string]string{
			"provider": string(provider.Detect(cfg.Provider.BaseURL)),
		},
	})
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	h.opts.Logger.Info("configuration reloaded", "provider", provider.Detect(cfg.Provider.BaseURL))
	return nil
}

// ParseLevel maps a log.level value to a slog level. Unknown values map
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
