// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/rolechat/internal/provider"
)

// MockBackend is a configurable test double for provider.Backend.
// Unset funcs fall back to harmless defaults. All methods are safe for
// concurrent use.
type MockBackend struct {
	KindValue    provider.Kind
	StartFunc    func(ctx context.Context, seed provider.Seed) (provider.Conversation, error)
	CompleteFunc func(ctx context.Context, req provider.CompletionRequest) (string, error)
	ListFunc     func(ctx context.Context) ([]provider.Model, error)
	ImageFunc    func(ctx context.Context, prompt string) (provider.Image, error)

	mu          sync.Mutex
	Seeds       []provider.Seed
	Completions []provider.CompletionRequest
	ListCalls   int
}

// Kind returns KindValue, defaulting to native.
func (m *MockBackend) Kind() provider.Kind {
	if m.KindValue == "" {
		return provider.KindNative
	}
	return m.KindValue
}

// StartConversation records the seed and delegates to StartFunc. Without a
// StartFunc it returns an empty ScriptedConversation.
func (m *MockBackend) StartConversation(ctx context.Context, seed provider.Seed) (provider.Conversation, error) {
	m.mu.Lock()
	m.Seeds = append(m.Seeds, seed)
	m.mu.Unlock()
	if m.StartFunc == nil {
		return &ScriptedConversation{}, nil
	}
	return m.StartFunc(ctx, seed)
}

// Complete records the request and delegates to CompleteFunc.
func (m *MockBackend) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.Completions = append(m.Completions, req)
	m.mu.Unlock()
	if m.CompleteFunc == nil {
		return "", nil
	}
	return m.CompleteFunc(ctx, req)
}

// ListModels delegates to ListFunc.
func (m *MockBackend) ListModels(ctx context.Context) ([]provider.Model, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()
	if m.ListFunc == nil {
		return nil, nil
	}
	return m.ListFunc(ctx)
}

// GenerateImage delegates to ImageFunc.
func (m *MockBackend) GenerateImage(ctx context.Context, prompt string) (provider.Image, error) {
	if m.ImageFunc == nil {
		return provider.Image{}, provider.ErrUnsupported
	}
	return m.ImageFunc(ctx, prompt)
}

// SeedCount returns the number of conversations started so far.
func (m *MockBackend) SeedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Seeds)
}

// LastSeed returns the most recent seed.
func (m *MockBackend) LastSeed() provider.Seed {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Seeds) == 0 {
		return provider.Seed{}
	}
	return m.Seeds[len(m.Seeds)-1]
}

// CompletionCount returns the number of Complete calls.
func (m *MockBackend) CompletionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Completions)
}

// ScriptedConversation replies to every Stream call with Fragments, then
// Err (if set). Sent records each user text.
type ScriptedConversation struct {
	Fragments []string
	Err       error
	StartErr  error

	// Gate, when non-nil, is waited on before the first fragment is sent.
	Gate <-chan struct{}

	mu   sync.Mutex
	Sent []string
}

// Stream implements provider.Conversation.
func (c *ScriptedConversation) Stream(ctx context.Context, text string) (<-chan provider.StreamChunk, error) {
	if c.StartErr != nil {
		return nil, c.StartErr
	}
	c.mu.Lock()
	c.Sent = append(c.Sent, text)
	c.mu.Unlock()

	ch := make(chan provider.StreamChunk)
	go func() {
		defer close(ch)
		if c.Gate != nil {
			select {
			case <-c.Gate:
			case <-ctx.Done():
				return
			}
		}
		for _, f := range c.Fragments {
			select {
			case ch <- provider.StreamChunk{Content: f}:
			case <-ctx.Done():
				return
			}
		}
		if c.Err != nil {
			select {
			case ch <- provider.StreamChunk{Err: c.Err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// SentTexts returns a copy of the texts streamed so far.
func (c *ScriptedConversation) SentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Sent))
	copy(out, c.Sent)
	return out
}

// Interface guards.
var (
	_ provider.Backend      = (*MockBackend)(nil)
	_ provider.Conversation = (*ScriptedConversation)(nil)
)
