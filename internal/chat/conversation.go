package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/rolechat/internal/assist"
	ctxengine "github.com/flemzord/rolechat/internal/context"
	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/internal/session"
	"github.com/flemzord/rolechat/pkg/message"
)

// Conversation is the chat with one character. History lives in the
// Service's store; the conversation keeps the live session in sync with it.
//
// Lock order: turnMu, then historyMu. Compaction holds historyMu and only
// ever TryLocks turnMu.
type Conversation struct {
	svc       *Service
	character Character
	session   *session.Store
	assist    *assist.Client
	compactor *ctxengine.Compactor
	logger    *slog.Logger

	// turnMu admits one streaming turn at a time.
	turnMu sync.Mutex
	// compactMu keeps compaction single flight.
	compactMu sync.Mutex
	// historyMu serializes read-modify-write cycles on stored history.
	historyMu sync.Mutex

	settingsMu sync.RWMutex
	settings   Settings

	// epoch changes whenever history is rewritten other than by appending.
	// Turns and compactions started under an older epoch are discarded.
	epoch atomic.Uint64
	// reseed is set when a compaction finished while a turn was streaming.
	reseed     atomic.Bool
	lastActive atomic.Int64
}

func newConversation(s *Service, ch Character, backend provider.Backend) *Conversation {
	logger := s.logger.With("character", ch.ID)
	c := &Conversation{
		svc:       s,
		character: ch,
		session:   session.NewStore(backend, s.assembler, logger),
		logger:    logger,
		settings:  s.defaults,
	}
	c.assist = assist.New(c, logger)
	c.compactor = ctxengine.NewCompactor(c.assist, s.ctxConfig)
	c.touch()
	return c
}

// ID returns the conversation identifier, which is the character ID.
func (c *Conversation) ID() string { return c.character.ID }

// Character returns the character this conversation is with.
func (c *Conversation) Character() Character { return c.character }

// State returns the live session state.
func (c *Conversation) State() session.State { return c.session.State() }

// Settings returns the current conversation settings.
func (c *Conversation) Settings() Settings {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	return c.settings
}

// Messages returns the stored history.
func (c *Conversation) Messages(ctx context.Context) ([]message.Message, error) {
	return c.load(ctx)
}

// Complete runs a one-shot completion against the conversation's model.
func (c *Conversation) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	b, err := c.svc.Backend()
	if err != nil {
		return "", err
	}
	req.Model = c.Settings().Model
	return b.Complete(ctx, req)
}

// Send streams the character's reply to text. onFragment, when non-nil,
// receives each reply fragment as it arrives. On success the user message
// and the reply are stored and the reply is returned. On failure nothing is
// stored and the returned message carries ErrorMarker.
func (c *Conversation) Send(ctx context.Context, text string, onFragment func(string)) (message.Message, error) {
	if strings.TrimSpace(text) == "" {
		return message.Message{}, ErrEmptyMessage
	}
	if !c.turnMu.TryLock() {
		return message.Message{}, ErrBusy
	}
	defer c.turnMu.Unlock()
	c.touch()
	return c.turn(ctx, text, onFragment)
}

// Edit replaces the user message messageID with text: the message and
// everything after it are dropped, the session restarts from the remaining
// history and text is sent as a new turn.
func (c *Conversation) Edit(ctx context.Context, messageID, text string, onFragment func(string)) (message.Message, error) {
	if strings.TrimSpace(text) == "" {
		return message.Message{}, ErrEmptyMessage
	}
	if !c.turnMu.TryLock() {
		return message.Message{}, ErrBusy
	}
	defer c.turnMu.Unlock()
	c.touch()

	err := c.rewrite(ctx, func(h []message.Message) ([]message.Message, error) {
		i := message.IndexOf(h, messageID)
		if i < 0 || h[i].Role != message.RoleUser || h[i].IsMemory {
			return nil, fmt.Errorf("%w: %q", ErrMessageNotFound, messageID)
		}
		return h[:i], nil
	})
	if err != nil {
		return message.Message{}, err
	}
	return c.turn(ctx, text, onFragment)
}

// Regenerate drops the latest reply and sends the last user message again.
func (c *Conversation) Regenerate(ctx context.Context, onFragment func(string)) (message.Message, error) {
	if !c.turnMu.TryLock() {
		return message.Message{}, ErrBusy
	}
	defer c.turnMu.Unlock()
	c.touch()

	var text string
	err := c.rewrite(ctx, func(h []message.Message) ([]message.Message, error) {
		last, ok := message.LastOfRole(h, message.RoleUser)
		if !ok {
			return nil, ErrNothingToRegenerate
		}
		text = last.Text
		return h[:message.IndexOf(h, last.ID)], nil
	})
	if err != nil {
		return message.Message{}, err
	}
	return c.turn(ctx, text, onFragment)
}

// Clear deletes the history, seeds the greeting again and restarts the
// session. A streaming turn is abandoned.
func (c *Conversation) Clear(ctx context.Context) error {
	c.touch()
	return c.rewrite(ctx, func([]message.Message) ([]message.Message, error) {
		return c.greeting(), nil
	})
}

// SetModel switches the model and restarts the session.
func (c *Conversation) SetModel(ctx context.Context, model string) error {
	return c.updateSettings(ctx, func(s *Settings) { s.Model = strings.TrimSpace(model) })
}

// SetPersona sets the user's persona and restarts the session.
func (c *Conversation) SetPersona(ctx context.Context, persona string) error {
	return c.updateSettings(ctx, func(s *Settings) { s.Persona = persona })
}

// SetHistoryLimit changes the number of rounds kept in the window. The
// value is clamped to the supported range.
func (c *Conversation) SetHistoryLimit(ctx context.Context, limit int) error {
	return c.updateSettings(ctx, func(s *Settings) { s.HistoryLimit = ctxengine.ClampHistoryLimit(limit) })
}

// RegenerateMemory summarizes every regular turn into a new memory entry
// appended to history, then restarts the session.
func (c *Conversation) RegenerateMemory(ctx context.Context) (message.Message, error) {
	c.touch()
	h, err := c.load(ctx)
	if err != nil {
		return message.Message{}, err
	}
	_, turns := message.SplitMemories(h)
	if len(turns) < 2 {
		return message.Message{}, ErrNotEnoughTurns
	}

	summary := c.assist.Summarize(ctx, turns, c.character.Name)
	if summary == "" {
		return message.Message{}, fmt.Errorf("%w: empty summary", ctxengine.ErrCompactionFailed)
	}
	mem := message.NewMemory(summary, c.svc.now())

	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	if err := c.svc.store.Append(ctx, c.ID(), mem); err != nil {
		return message.Message{}, fmt.Errorf("chat: storing memory: %w", err)
	}
	if err := c.startLocked(ctx); err != nil {
		c.logger.Warn("session restart after memory failed", "error", err)
	}
	return mem, nil
}

// DeleteMemory removes the memory entry id and restarts the session.
func (c *Conversation) DeleteMemory(ctx context.Context, id string) error {
	c.touch()
	return c.rewrite(ctx, func(h []message.Message) ([]message.Message, error) {
		i := message.IndexOf(h, id)
		if i < 0 || !h[i].IsMemory {
			return nil, fmt.Errorf("%w: %q", ErrMessageNotFound, id)
		}
		return slices.Delete(slices.Clone(h), i, i+1), nil
	})
}

// Suggest proposes up to three replies to the character's latest message.
func (c *Conversation) Suggest(ctx context.Context) ([]string, error) {
	c.touch()
	h, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	last, ok := message.LastOfRole(h, message.RoleModel)
	if !ok {
		if len(h) == 0 {
			return []string{}, nil
		}
		last = h[len(h)-1]
	}

	ctx, span := c.svc.tracer.Start(ctx, "chat.suggest", c.spanAttrs())
	defer span.End()
	return c.assist.SuggestReplies(ctx, c.character.Name, last.Text), nil
}

// Summarize returns a summary of the whole stored conversation, or "" when
// the provider could not produce one.
func (c *Conversation) Summarize(ctx context.Context) (string, error) {
	c.touch()
	h, err := c.load(ctx)
	if err != nil {
		return "", err
	}
	if len(h) == 0 {
		return "", nil
	}
	ctx, span := c.svc.tracer.Start(ctx, "chat.summarize", c.spanAttrs())
	defer span.End()
	return c.assist.Summarize(ctx, h, c.character.Name), nil
}

// turn runs one user turn. The caller holds turnMu.
func (c *Conversation) turn(ctx context.Context, text string, onFragment func(string)) (message.Message, error) {
	ctx, span := c.svc.tracer.Start(ctx, "chat.turn", c.spanAttrs())
	defer span.End()

	start := c.svc.now()
	epoch := c.epoch.Load()
	user := message.NewUser(text, start)

	if err := c.ensureSession(ctx); err != nil {
		return c.failTurn(span, start, err)
	}
	stream, err := c.session.Send(ctx, text)
	if err != nil {
		return c.failTurn(span, start, err)
	}

	var (
		b         strings.Builder
		streamErr error
		fragments int
	)
	for chunk := range stream {
		if chunk.Err != nil {
			streamErr = chunk.Err
			continue
		}
		if c.epoch.Load() != epoch {
			continue
		}
		fragments++
		b.WriteString(chunk.Content)
		if onFragment != nil {
			onFragment(chunk.Content)
		}
	}
	if streamErr == nil {
		streamErr = ctx.Err()
	}

	if errors.Is(streamErr, session.ErrSuperseded) || c.epoch.Load() != epoch {
		return c.abandonTurn(span, start)
	}
	if streamErr != nil {
		return c.failTurn(span, start, streamErr)
	}

	reply := message.NewModel(b.String(), c.svc.now())
	history, err := c.persistTurn(ctx, epoch, user, reply)
	if errors.Is(err, ErrAbandoned) {
		return c.abandonTurn(span, start)
	}
	if err != nil {
		return c.failTurn(span, start, err)
	}

	span.SetAttributes(attribute.Int("fragments", fragments), attribute.Int("history", len(history)))
	c.svc.health.RecordSuccess()
	c.svc.observer.TurnCompleted(c.kind(), OutcomeOK, c.svc.now().Sub(start))
	c.maybeCompact(history)
	if c.reseed.Swap(false) {
		if err := c.restart(ctx); err != nil {
			c.logger.Warn("session re-seed after compaction failed", "error", err)
		}
	}
	return reply, nil
}

func (c *Conversation) persistTurn(ctx context.Context, epoch uint64, user, reply message.Message) ([]message.Message, error) {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	if c.epoch.Load() != epoch {
		return nil, ErrAbandoned
	}
	if err := c.svc.store.Append(ctx, c.ID(), user, reply); err != nil {
		return nil, fmt.Errorf("chat: storing turn: %w", err)
	}
	return c.load(ctx)
}

func (c *Conversation) failTurn(span trace.Span, start time.Time, err error) (message.Message, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if !errors.Is(err, context.Canceled) {
		c.svc.health.RecordFailure()
	}
	c.svc.observer.TurnCompleted(c.kind(), OutcomeError, c.svc.now().Sub(start))
	c.logger.Warn("turn failed", "error", err)
	return message.NewModel(ErrorMarker, c.svc.now()), fmt.Errorf("chat: send: %w", err)
}

func (c *Conversation) abandonTurn(span trace.Span, start time.Time) (message.Message, error) {
	span.SetAttributes(attribute.Bool("abandoned", true))
	c.svc.observer.TurnCompleted(c.kind(), OutcomeAbandoned, c.svc.now().Sub(start))
	c.logger.Debug("turn abandoned")
	return message.Message{}, ErrAbandoned
}

// ensureSession starts the session lazily, or re-seeds it when a
// compaction finished during the previous turn.
func (c *Conversation) ensureSession(ctx context.Context) error {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	if c.reseed.Swap(false) {
		return c.startLocked(ctx)
	}
	h, err := c.load(ctx)
	if err != nil {
		return err
	}
	return c.session.Ensure(ctx, c.params(h))
}

// rewrite replaces stored history with fn's result, moves to a new epoch
// and restarts the session from the new history. A restart failure is
// logged; the next send retries.
func (c *Conversation) rewrite(ctx context.Context, fn func([]message.Message) ([]message.Message, error)) error {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()

	h, err := c.load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(h)
	if err != nil {
		return err
	}
	if err := c.svc.store.Replace(ctx, c.ID(), next); err != nil {
		return fmt.Errorf("chat: rewriting history: %w", err)
	}
	c.epoch.Add(1)
	c.reseed.Store(false)
	if err := c.session.Start(ctx, c.params(next)); err != nil {
		c.logger.Warn("session restart failed, will retry on send", "error", err)
	}
	return nil
}

func (c *Conversation) updateSettings(ctx context.Context, fn func(*Settings)) error {
	c.touch()
	c.settingsMu.Lock()
	prev := c.settings
	fn(&c.settings)
	changed := c.settings != prev
	c.settingsMu.Unlock()

	if !changed {
		return nil
	}
	return c.restart(ctx)
}

// restart starts a new session from the current stored history.
func (c *Conversation) restart(ctx context.Context) error {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	return c.startLocked(ctx)
}

func (c *Conversation) startLocked(ctx context.Context) error {
	h, err := c.load(ctx)
	if err != nil {
		return err
	}
	return c.session.Start(ctx, c.params(h))
}

// maybeCompact launches a background compaction when history has grown
// past the threshold and none is running.
func (c *Conversation) maybeCompact(history []message.Message) {
	if !c.compactor.ShouldCompact(history) {
		return
	}
	if !c.compactMu.TryLock() {
		return
	}
	epoch := c.epoch.Load()
	snapshot := message.Clone(history)

	c.svc.wg.Add(1)
	go func() {
		defer c.svc.wg.Done()
		defer c.compactMu.Unlock()
		c.compact(c.svc.baseCtx, epoch, snapshot)
	}()
}

func (c *Conversation) compact(ctx context.Context, epoch uint64, snapshot []message.Message) {
	ctx, span := c.svc.tracer.Start(ctx, "chat.compaction", c.spanAttrs())
	defer span.End()

	result, err := c.compactor.Summarize(ctx, snapshot, c.character.Name)
	if err != nil {
		span.RecordError(err)
		c.svc.observer.CompactionCompleted(OutcomeError)
		c.logger.Warn("compaction failed", "error", err)
		return
	}

	c.historyMu.Lock()
	defer c.historyMu.Unlock()

	if c.epoch.Load() != epoch {
		c.svc.observer.CompactionCompleted(OutcomeAbandoned)
		c.logger.Debug("compaction abandoned, history was rewritten")
		return
	}
	current, err := c.load(ctx)
	if err != nil {
		c.svc.observer.CompactionCompleted(OutcomeError)
		c.logger.Warn("compaction reload failed", "error", err)
		return
	}
	next, err := ctxengine.Rebase(result, current)
	if err != nil {
		c.svc.observer.CompactionCompleted(OutcomeDiverged)
		c.logger.Warn("compaction discarded", "error", err)
		return
	}
	if err := c.svc.store.Replace(ctx, c.ID(), next); err != nil {
		c.svc.observer.CompactionCompleted(OutcomeError)
		c.logger.Warn("storing compacted history failed", "error", err)
		return
	}
	c.svc.observer.CompactionCompleted(OutcomeOK)
	span.SetAttributes(attribute.Int("summarized", len(result.Summarized)), attribute.Int("history", len(next)))
	c.logger.Info("history compacted",
		"summarized", len(result.Summarized),
		"remaining", len(next),
	)

	// A streaming turn would be abandoned by a restart; leave the re-seed
	// to it.
	if !c.turnMu.TryLock() {
		c.reseed.Store(true)
		return
	}
	defer c.turnMu.Unlock()
	if err := c.session.Start(ctx, c.params(next)); err != nil {
		c.logger.Warn("session re-seed after compaction failed", "error", err)
	}
}

func (c *Conversation) seedGreeting(ctx context.Context) error {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	n, err := c.svc.store.Len(ctx, c.ID())
	if err != nil {
		return fmt.Errorf("chat: loading history: %w", err)
	}
	if n > 0 {
		return nil
	}
	if g := c.greeting(); len(g) > 0 {
		if err := c.svc.store.Append(ctx, c.ID(), g...); err != nil {
			return fmt.Errorf("chat: storing greeting: %w", err)
		}
	}
	return nil
}

func (c *Conversation) greeting() []message.Message {
	if strings.TrimSpace(c.character.Greeting) == "" {
		return nil
	}
	return []message.Message{message.NewModel(c.character.Greeting, c.svc.now())}
}

func (c *Conversation) load(ctx context.Context) ([]message.Message, error) {
	h, err := c.svc.store.Load(ctx, c.ID())
	if err != nil {
		return nil, fmt.Errorf("chat: loading history: %w", err)
	}
	return h, nil
}

func (c *Conversation) params(history []message.Message) session.Params {
	s := c.Settings()
	return session.Params{
		CharacterID:          c.character.ID,
		CharacterInstruction: c.character.Instruction,
		History:              history,
		Model:                s.Model,
		Persona:              s.Persona,
		HistoryLimit:         s.HistoryLimit,
	}
}

func (c *Conversation) kind() provider.Kind {
	if b := c.session.Backend(); b != nil {
		return b.Kind()
	}
	return ""
}

func (c *Conversation) spanAttrs() trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("character", c.character.ID),
		attribute.String("provider", string(c.kind())),
	)
}

func (c *Conversation) touch() {
	c.lastActive.Store(c.svc.now().UnixNano())
}

func (c *Conversation) lastActivity() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Interface guard.
var _ provider.Completer = (*Conversation)(nil)
