package chat

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/rolechat/internal/memory"
	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/internal/provider/providertest"
	"github.com/flemzord/rolechat/internal/session"
)

var testCharacter = Character{
	ID:          "aria",
	Name:        "Aria",
	Instruction: "You are Aria, a wandering bard.",
	Greeting:    "Well met, traveler!",
}

// fakeClock advances one second on every read so stored timestamps stay
// strictly increasing.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// replying returns a backend whose conversations answer every turn with
// fragments.
func replying(fragments ...string) *providertest.MockBackend {
	return &providertest.MockBackend{
		StartFunc: func(context.Context, provider.Seed) (provider.Conversation, error) {
			return &providertest.ScriptedConversation{Fragments: fragments}, nil
		},
		CompleteFunc: func(context.Context, provider.CompletionRequest) (string, error) {
			return "They met at the tavern.", nil
		},
	}
}

type harness struct {
	svc     *Service
	backend *providertest.MockBackend
	store   *memory.InMemoryHistoryStore
	clock   *fakeClock
	obs     *recordingObserver
}

func newHarness(t *testing.T, backend *providertest.MockBackend, chars ...Character) *harness {
	t.Helper()
	if len(chars) == 0 {
		chars = []Character{testCharacter}
	}
	h := &harness{
		backend: backend,
		store:   memory.NewInMemoryHistoryStore(),
		clock:   newFakeClock(),
		obs:     newRecordingObserver(),
	}
	svc, err := New(context.Background(), Options{
		Provider:   provider.Config{APIKey: "test-key"},
		Store:      h.store,
		Characters: chars,
		Defaults:   Settings{Model: "gemini-2.5-flash"},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        h.clock.Now,
		Observer:   h.obs,
		NewBackend: func(context.Context, provider.Config, *slog.Logger) (provider.Backend, error) {
			return backend, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(svc.Close)
	h.svc = svc
	return h
}

func (h *harness) open(t *testing.T, id string) *Conversation {
	t.Helper()
	c, err := h.svc.Open(context.Background(), id)
	if err != nil {
		t.Fatalf("Open(%q): %v", id, err)
	}
	return c
}

// waitCompaction blocks until a running compaction has finished.
func waitCompaction(c *Conversation) {
	c.compactMu.Lock()
	defer c.compactMu.Unlock()
}

func waitForState(t *testing.T, c *Conversation, want session.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", c.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

// recordingObserver counts outcomes.
type recordingObserver struct {
	mu          sync.Mutex
	turns       map[string]int
	compactions map[string]int
	open        int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{turns: map[string]int{}, compactions: map[string]int{}}
}

func (o *recordingObserver) TurnCompleted(_ provider.Kind, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turns[outcome]++
}

func (o *recordingObserver) CompactionCompleted(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.compactions[outcome]++
}

func (o *recordingObserver) ConversationsOpen(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open = n
}

func (o *recordingObserver) turnCount(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.turns[outcome]
}

func (o *recordingObserver) compactionCount(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.compactions[outcome]
}
