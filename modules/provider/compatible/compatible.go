// Package compatible implements a provider.Backend for OpenAI-compatible
// chat completion endpoints such as OpenRouter. The remote side is
// stateless: each conversation keeps its own message list and resends it in
// full on every turn, and replies are streamed as Server-Sent Events.
package compatible

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/flemzord/rolechat/internal/provider"
)

// Interface guards.
var (
	_ provider.Backend      = (*Backend)(nil)
	_ provider.Conversation = (*conversation)(nil)
)

func init() {
	provider.RegisterBackend(provider.KindCompatible, func(_ context.Context, opts provider.Options) (provider.Backend, error) {
		return New(opts.Resolution, opts.Config, opts.Logger)
	})
}

// Backend talks to an OpenAI-compatible HTTP API.
type Backend struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New validates the resolved endpoint and builds the HTTP client.
//
// The client uses transport-level timeouts (dial + TLS + response header)
// instead of http.Client.Timeout so long replies are not cut off mid-stream.
// Body reads are governed by context cancellation instead.
func New(res provider.Resolution, cfg provider.Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := Config{
		APIKey:  res.APIKey,
		BaseURL: res.BaseURL,
		Referer: cfg.Referer,
		Title:   cfg.Title,
		Timeout: cfg.Timeout,
	}
	c.defaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	return &Backend{
		config: c,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: c.Timeout}).DialContext,
				TLSHandshakeTimeout:   c.Timeout,
				ResponseHeaderTimeout: c.Timeout,
			},
		},
		logger: logger.With("provider", provider.KindCompatible),
	}, nil
}

// Kind returns provider.KindCompatible.
func (b *Backend) Kind() provider.Kind { return provider.KindCompatible }

// StartConversation builds the local message list for seed. No request is
// made until the first turn.
func (b *Backend) StartConversation(_ context.Context, seed provider.Seed) (provider.Conversation, error) {
	if seed.Model == "" {
		return nil, fmt.Errorf("compatible: model is required: %w", provider.ErrConfig)
	}
	history := make([]apiMessage, 0, len(seed.History))
	for _, t := range seed.History {
		history = append(history, apiMessage{Role: roleFor(t.Role), Content: t.Content})
	}
	return &conversation{
		backend:     b,
		model:       seed.Model,
		system:      seed.SystemInstruction,
		temperature: seed.Sampling.Temperature,
		history:     history,
	}, nil
}

// GenerateImage is not offered by chat completion endpoints.
func (b *Backend) GenerateImage(context.Context, string) (provider.Image, error) {
	return provider.Image{}, fmt.Errorf("compatible: image generation: %w", provider.ErrUnsupported)
}

func roleFor(r provider.TurnRole) string {
	if r == provider.TurnModel {
		return "assistant"
	}
	return "user"
}

// validate checks the endpoint and credentials.
func (c *Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("compatible: api key is required: %w", provider.ErrConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("compatible: invalid base url: %w: %w", err, provider.ErrConfig)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("compatible: base url scheme must be http or https, got %q: %w", u.Scheme, provider.ErrConfig)
	}
	if u.Host == "" {
		return fmt.Errorf("compatible: base url must include a host: %w", provider.ErrConfig)
	}
	return nil
}
