// Package gateway serves the conversation engine over HTTP: a JSON API,
// Server-Sent-Events streaming for turns, a WebSocket chat endpoint,
// health and Prometheus metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/rolechat/internal/chat"
	"github.com/flemzord/rolechat/internal/security"
	"github.com/flemzord/rolechat/internal/telemetry"
)

// Options wire a Gateway to the running server.
type Options struct {
	Config      Config
	Service     *chat.Service
	Credentials *security.CredentialStore
	Limiter     *security.RateLimiter
	Audit       *security.AuditLogger

	// Metrics, when set, is served on /metrics and records request metrics.
	Metrics *telemetry.Metrics

	Logger  *slog.Logger
	Version string
}

// Gateway is the HTTP server in front of a chat.Service.
type Gateway struct {
	cfg     Config
	svc     *chat.Service
	creds   *security.CredentialStore
	limiter *security.RateLimiter
	audit   *security.AuditLogger
	metrics *telemetry.Metrics
	logger  *slog.Logger
	version string

	startedAt time.Time
	server    *http.Server
	handler   http.Handler
}

// New creates a Gateway. Nothing listens until Start.
func New(opts Options) (*Gateway, error) {
	if opts.Service == nil {
		return nil, errors.New("gateway: chat service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Credentials == nil {
		opts.Credentials = security.NewCredentialStore()
	}
	if opts.Limiter == nil {
		opts.Limiter = security.NewRateLimiter(security.RateLimitConfig{})
	}
	opts.Config.defaults()

	g := &Gateway{
		cfg:       opts.Config,
		svc:       opts.Service,
		creds:     opts.Credentials,
		limiter:   opts.Limiter,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		version:   opts.Version,
		startedAt: time.Now(),
	}
	g.handler = g.buildRouter()
	return g, nil
}

// Handler returns the root handler.
func (g *Gateway) Handler() http.Handler { return g.handler }

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.server = &http.Server{
		Addr:         g.cfg.Bind,
		Handler:      g.handler,
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.cfg.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, g.cfg.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
