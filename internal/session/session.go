// Package session holds the live provider conversation for one chat and
// guards its lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	ctxengine "github.com/flemzord/rolechat/internal/context"
	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/pkg/message"
)

var (
	// ErrStreaming is returned by Send while a previous reply is still streaming.
	ErrStreaming = errors.New("session: a reply is already streaming")

	// ErrSuperseded is delivered as the final chunk of a stream abandoned by
	// a newer Start, Reset or SetBackend.
	ErrSuperseded = errors.New("session: stream superseded")
)

// State is a stage of the session lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Key identifies what a live session was seeded for. Any change to any
// field requires a new session.
type Key struct {
	CharacterID       string
	SystemInstruction string
	Model             string
	Persona           string
	HistoryLimit      int
}

// Params are the inputs to Start.
type Params struct {
	CharacterID          string
	CharacterInstruction string
	History              []message.Message
	Model                string
	Persona              string
	HistoryLimit         int
}

// Key returns the session key derived from p.
func (p Params) Key() Key {
	return Key{
		CharacterID:       p.CharacterID,
		SystemInstruction: p.CharacterInstruction,
		Model:             p.Model,
		Persona:           p.Persona,
		HistoryLimit:      ctxengine.ClampHistoryLimit(p.HistoryLimit),
	}
}

// Store owns exactly one live provider conversation. Every Start replaces
// the previous conversation; nothing is updated in place. A generation
// counter lets late results from a superseded conversation be discarded.
type Store struct {
	assembler *ctxengine.Assembler
	logger    *slog.Logger

	mu         sync.Mutex
	backend    provider.Backend
	state      State
	key        Key
	conv       provider.Conversation
	generation uint64
	cancel     context.CancelFunc
}

// NewStore creates a Store that seeds conversations on backend.
func NewStore(backend provider.Backend, assembler *ctxengine.Assembler, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if assembler == nil {
		assembler = ctxengine.NewAssembler(ctxengine.DefaultContextConfig())
	}
	return &Store{
		assembler: assembler,
		logger:    logger,
		backend:   backend,
	}
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Key returns the key of the live or initializing session.
func (s *Store) Key() Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Ready reports whether a session for key is live.
func (s *Store) Ready(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.state == StateReady || s.state == StateStreaming) && s.key == key
}

// Start seeds a new conversation from p, unconditionally replacing the
// current one. An in-flight stream of the old conversation is abandoned.
// Failures are wrapped with provider.ErrSessionInit and leave the store
// uninitialized so the next send can retry.
func (s *Store) Start(ctx context.Context, p Params) error {
	s.mu.Lock()
	gen := s.supersedeLocked()
	s.state = StateInitializing
	s.key = p.Key()
	backend := s.backend
	s.mu.Unlock()

	if backend == nil {
		return s.failStart(gen, fmt.Errorf("%w: no provider configured", provider.ErrSessionInit))
	}

	seed := s.assembler.Build(ctxengine.BuildRequest{
		CharacterInstruction: p.CharacterInstruction,
		History:              p.History,
		Model:                p.Model,
		Persona:              p.Persona,
		HistoryLimit:         p.HistoryLimit,
		Kind:                 backend.Kind(),
	})

	conv, err := backend.StartConversation(ctx, seed)
	if err != nil {
		return s.failStart(gen, fmt.Errorf("%w: %w", provider.ErrSessionInit, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		// A newer Start or Reset won.
		return nil
	}
	s.conv = conv
	s.state = StateReady
	s.logger.Debug("session started",
		"character", p.CharacterID,
		"model", p.Model,
		"provider", backend.Kind(),
		"window", len(seed.History),
	)
	return nil
}

// Ensure starts a session for p unless one with the same key is live.
func (s *Store) Ensure(ctx context.Context, p Params) error {
	if s.Ready(p.Key()) {
		return nil
	}
	return s.Start(ctx, p)
}

func (s *Store) failStart(gen uint64, err error) error {
	s.mu.Lock()
	if s.generation == gen {
		s.state = StateUninitialized
		s.conv = nil
	}
	s.mu.Unlock()
	s.logger.Warn("session start failed", "error", err)
	return err
}

// Send streams the model's reply to text. The returned channel is closed
// when the reply completes, fails, or is abandoned by a newer Start. A
// transport error is delivered as the final chunk and returns the store to
// Ready. An abandoned stream ends with ErrSuperseded.
func (s *Store) Send(ctx context.Context, text string) (<-chan provider.StreamChunk, error) {
	s.mu.Lock()
	switch s.state {
	case StateReady:
	case StateStreaming:
		s.mu.Unlock()
		return nil, ErrStreaming
	default:
		s.mu.Unlock()
		return nil, provider.ErrNotInitialized
	}
	gen := s.generation
	conv := s.conv
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateStreaming
	s.mu.Unlock()

	upstream, err := conv.Stream(streamCtx, text)
	if err != nil {
		s.finishStream(gen)
		return nil, fmt.Errorf("%w: %w", provider.ErrTransport, err)
	}

	out := make(chan provider.StreamChunk)
	go func() {
		defer close(out)
		defer s.finishStream(gen)
	forward:
		for chunk := range upstream {
			if !s.current(gen) {
				break
			}
			select {
			case out <- chunk:
			case <-streamCtx.Done():
				break forward
			}
		}
		if !s.current(gen) {
			select {
			case out <- provider.StreamChunk{Err: ErrSuperseded}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (s *Store) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}

func (s *Store) finishStream(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.state == StateStreaming {
		s.state = StateReady
	}
}

// Reset drops the live session. The next send must Start again.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked()
	s.state = StateUninitialized
	s.conv = nil
	s.key = Key{}
}

// SetBackend swaps the provider and drops the live session, which was
// seeded on the previous provider.
func (s *Store) SetBackend(b provider.Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked()
	s.backend = b
	s.state = StateUninitialized
	s.conv = nil
	s.key = Key{}
}

// Backend returns the current provider.
func (s *Store) Backend() provider.Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// supersedeLocked bumps the generation and cancels any in-flight stream.
func (s *Store) supersedeLocked() uint64 {
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return s.generation
}
