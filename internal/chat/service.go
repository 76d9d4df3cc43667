// Package chat orchestrates roleplay conversations: it owns the provider
// backend, the message store and one live session per character, and runs
// turns, edits, regeneration and background compaction on top of them.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	ctxengine "github.com/flemzord/rolechat/internal/context"
	"github.com/flemzord/rolechat/internal/memory"
	"github.com/flemzord/rolechat/internal/provider"
)

const (
	tracerName = "github.com/flemzord/rolechat/internal/chat"

	defaultModelsTTL = 10 * time.Minute
)

// BackendFactory builds a provider backend from configuration.
type BackendFactory func(ctx context.Context, cfg provider.Config, logger *slog.Logger) (provider.Backend, error)

// Options configure a Service.
type Options struct {
	Provider   provider.Config
	Store      memory.HistoryStore
	Characters []Character

	// Defaults seed the settings of newly opened conversations.
	Defaults Settings

	Context        ctxengine.ContextConfig
	ModelsTTL      time.Duration
	Health         provider.HealthConfig
	Observer       Observer
	TracerProvider trace.TracerProvider
	Logger         *slog.Logger
	Now            func() time.Time

	// NewBackend overrides provider.NewBackend.
	NewBackend BackendFactory
}

// Service owns the provider backend and every open conversation.
type Service struct {
	store      memory.HistoryStore
	characters map[string]Character
	order      []string
	defaults   Settings
	assembler  *ctxengine.Assembler
	ctxConfig  ctxengine.ContextConfig
	observer   Observer
	tracer     trace.Tracer
	logger     *slog.Logger
	now        func() time.Time
	newBackend BackendFactory

	models *ModelsCache
	health *provider.Health
	flight singleflight.Group

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu            sync.RWMutex
	cfg           provider.Config
	backend       provider.Backend
	backendErr    error
	conversations map[string]*Conversation
}

// New creates a Service. A provider configuration that cannot be turned
// into a backend is not fatal: the error is kept and reported by every
// operation until Reconfigure succeeds.
func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Store == nil {
		opts.Store = memory.NewInMemoryHistoryStore()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewBackend == nil {
		opts.NewBackend = provider.NewBackend
	}
	if opts.ModelsTTL <= 0 {
		opts.ModelsTTL = defaultModelsTTL
	}
	opts.Defaults.HistoryLimit = ctxengine.ClampHistoryLimit(opts.Defaults.HistoryLimit)

	characters := make(map[string]Character, len(opts.Characters))
	order := make([]string, 0, len(opts.Characters))
	for _, ch := range opts.Characters {
		if strings.TrimSpace(ch.ID) == "" {
			return nil, fmt.Errorf("chat: character %q has no id", ch.Name)
		}
		if _, dup := characters[ch.ID]; dup {
			return nil, fmt.Errorf("chat: duplicate character id %q", ch.ID)
		}
		if ch.Name == "" {
			ch.Name = ch.ID
		}
		characters[ch.ID] = ch
		order = append(order, ch.ID)
	}

	baseCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s := &Service{
		store:         opts.Store,
		characters:    characters,
		order:         order,
		defaults:      opts.Defaults,
		assembler:     ctxengine.NewAssembler(opts.Context),
		ctxConfig:     opts.Context,
		observer:      opts.Observer,
		tracer:        opts.TracerProvider.Tracer(tracerName),
		logger:        opts.Logger,
		now:           opts.Now,
		newBackend:    opts.NewBackend,
		models:        NewModelsCache(opts.ModelsTTL, opts.Now),
		health:        provider.NewHealth(opts.Health, opts.Now),
		baseCtx:       baseCtx,
		stop:          stop,
		cfg:           opts.Provider,
		conversations: make(map[string]*Conversation),
	}

	s.health.OnStateChange = func(from, to provider.HealthState) {
		s.logger.Warn("provider health changed", "from", from.String(), "to", to.String())
	}

	s.backend, s.backendErr = s.newBackend(ctx, opts.Provider, s.logger)
	if s.backendErr != nil {
		s.backend = nil
		s.logger.Warn("provider not ready", "error", s.backendErr)
	}
	return s, nil
}

// Backend returns the current provider backend.
func (s *Service) Backend() (provider.Backend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backend == nil {
		if s.backendErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoProvider, s.backendErr)
		}
		return nil, ErrNoProvider
	}
	return s.backend, nil
}

// ProviderConfig returns the active provider configuration.
func (s *Service) ProviderConfig() provider.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reconfigure switches to cfg. Every live session was seeded on the old
// credentials and is dropped; conversations restart lazily on their next
// send. Applying the active configuration again is a no-op.
func (s *Service) Reconfigure(ctx context.Context, cfg provider.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil && cfg == s.cfg {
		return nil
	}

	b, err := s.newBackend(ctx, cfg, s.logger)
	if err != nil {
		b = nil
	}
	s.cfg = cfg
	s.backend = b
	s.backendErr = err
	s.models.Invalidate()
	s.health.Reset()
	for _, c := range s.conversations {
		c.session.SetBackend(b)
	}

	if err != nil {
		return fmt.Errorf("chat: reconfigure: %w", err)
	}
	s.logger.Info("provider configured",
		"kind", b.Kind(),
		"conversations", len(s.conversations),
	)
	return nil
}

// Health reports provider availability derived from recent turns.
func (s *Service) Health() provider.HealthSnapshot {
	return s.health.Snapshot()
}

// Characters returns the known characters in configuration order.
func (s *Service) Characters() []Character {
	out := make([]Character, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.characters[id])
	}
	return out
}

// Character looks up a character by ID.
func (s *Service) Character(id string) (Character, bool) {
	ch, ok := s.characters[id]
	return ch, ok
}

// Open returns the conversation with characterID, creating it on first use.
// A new conversation with an empty history receives the character's
// greeting, and its session is started eagerly. A start failure is logged
// and retried on the first send.
func (s *Service) Open(ctx context.Context, characterID string) (*Conversation, error) {
	ch, ok := s.characters[characterID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharacter, characterID)
	}

	s.mu.Lock()
	if c, ok := s.conversations[characterID]; ok {
		s.mu.Unlock()
		c.touch()
		return c, nil
	}
	c := newConversation(s, ch, s.backend)
	if err := c.seedGreeting(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.conversations[characterID] = c
	n := len(s.conversations)
	s.mu.Unlock()

	s.observer.ConversationsOpen(n)
	if err := c.restart(ctx); err != nil {
		c.logger.Warn("eager session start failed, will retry on send", "error", err)
	}
	return c, nil
}

// OpenConversations returns the number of conversations held in memory.
func (s *Service) OpenConversations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// EvictIdle drops open conversations that have been idle longer than
// maxIdle and are not mid-turn. Their history stays in the store. It
// returns the number evicted.
func (s *Service) EvictIdle(maxIdle time.Duration) int {
	now := s.now()

	s.mu.Lock()
	evicted := 0
	for id, c := range s.conversations {
		if now.Sub(c.lastActivity()) <= maxIdle {
			continue
		}
		if !c.turnMu.TryLock() {
			continue
		}
		c.session.Reset()
		c.turnMu.Unlock()
		delete(s.conversations, id)
		evicted++
	}
	n := len(s.conversations)
	s.mu.Unlock()

	if evicted > 0 {
		s.observer.ConversationsOpen(n)
		s.logger.Info("evicted idle conversations", "count", evicted, "open", n)
	}
	return evicted
}

// ListModels returns the models offered by the current provider. Results
// are cached and concurrent misses share one request.
func (s *Service) ListModels(ctx context.Context) ([]provider.Model, error) {
	if models := s.models.Get(); models != nil {
		return models, nil
	}

	v, err, _ := s.flight.Do("models", func() (any, error) {
		b, err := s.Backend()
		if err != nil {
			return nil, err
		}
		models, err := b.ListModels(ctx)
		if err != nil {
			return nil, err
		}
		if models == nil {
			models = []provider.Model{}
		}
		s.models.Set(models)
		return models, nil
	})
	if err != nil {
		return nil, fmt.Errorf("chat: listing models: %w", err)
	}
	return v.([]provider.Model), nil
}

// RefreshModels discards the cached listing and fetches it again.
func (s *Service) RefreshModels(ctx context.Context) error {
	s.models.Invalidate()
	_, err := s.ListModels(ctx)
	return err
}

// GenerateImage produces a character portrait for prompt.
func (s *Service) GenerateImage(ctx context.Context, prompt string) (provider.Image, error) {
	if strings.TrimSpace(prompt) == "" {
		return provider.Image{}, ErrEmptyMessage
	}
	ctx, span := s.tracer.Start(ctx, "chat.image")
	defer span.End()

	b, err := s.Backend()
	if err != nil {
		return provider.Image{}, err
	}
	span.SetAttributes(attribute.String("provider", string(b.Kind())))
	img, err := b.GenerateImage(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return provider.Image{}, fmt.Errorf("chat: generating image: %w", err)
	}
	return img, nil
}

// Close stops background compactions, waits for them and drops every live
// session.
func (s *Service) Close() {
	s.stop()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		c.session.Reset()
	}
}
