// Package native implements a provider.Backend on the Gemini SDK. The SDK
// chat object owns the conversation history, so a conversation here is a
// thin wrapper that forwards streamed text.
package native

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/flemzord/rolechat/internal/provider"
)

// Interface guards.
var (
	_ provider.Backend      = (*Backend)(nil)
	_ provider.Conversation = (*conversation)(nil)
	_ sdk                   = (*sdkClient)(nil)
)

func init() {
	provider.RegisterBackend(provider.KindNative, func(ctx context.Context, opts provider.Options) (provider.Backend, error) {
		return New(ctx, opts.Resolution, opts.Logger)
	})
}

// Backend is a provider.Backend for the Gemini API.
type Backend struct {
	sdk    sdk
	config Config
	logger *slog.Logger
}

// New creates the SDK client for res. An empty base URL selects the SDK's
// default endpoint.
func New(ctx context.Context, res provider.Resolution, logger *slog.Logger) (*Backend, error) {
	if res.APIKey == "" {
		return nil, fmt.Errorf("native: api key is required: %w", provider.ErrConfig)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      res.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: res.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("native: creating client: %w: %w", err, provider.ErrConfig)
	}
	return newBackend(&sdkClient{client: client}, Config{}, logger), nil
}

func newBackend(s sdk, cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.defaults()
	return &Backend{
		sdk:    s,
		config: cfg,
		logger: logger.With("provider", provider.KindNative),
	}
}

// Kind returns provider.KindNative.
func (b *Backend) Kind() provider.Kind { return provider.KindNative }

// StartConversation creates an SDK chat seeded with the mapped history, the
// system instruction and the sampling parameters.
func (b *Backend) StartConversation(ctx context.Context, seed provider.Seed) (provider.Conversation, error) {
	model := seed.Model
	if model == "" {
		model = b.config.ChatModel
	}

	history := make([]*genai.Content, 0, len(seed.History))
	for _, t := range seed.History {
		role := genai.Role(genai.RoleUser)
		if t.Role == provider.TurnModel {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(t.Content, role))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: float32Ptr(seed.Sampling.Temperature),
		TopP:        float32Ptr(seed.Sampling.TopP),
		TopK:        float32Ptr(seed.Sampling.TopK),
	}
	if seed.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: seed.SystemInstruction}}}
	}

	chat, err := b.sdk.CreateChat(ctx, model, cfg, history)
	if err != nil {
		return nil, fmt.Errorf("native: creating chat: %w", mapError(err))
	}
	return &conversation{chat: chat, model: model, logger: b.logger}, nil
}

// Complete runs a one-shot completion on the auxiliary model. The request
// model is ignored: suggestions and summaries always use the fast model.
func (b *Backend) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	var cfg *genai.GenerateContentConfig
	if req.Temperature != nil {
		cfg = &genai.GenerateContentConfig{Temperature: float32Ptr(req.Temperature)}
	}
	resp, err := b.sdk.GenerateContent(ctx, b.config.AuxModel, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("native: generate content: %w", mapError(err))
	}
	return resp.Text(), nil
}

func float32Ptr(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}
