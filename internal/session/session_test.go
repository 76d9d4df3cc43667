package session_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/internal/provider/providertest"
	"github.com/flemzord/rolechat/internal/session"
	"github.com/flemzord/rolechat/pkg/message"
)

func testParams() session.Params {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return session.Params{
		CharacterID:          "aria",
		CharacterInstruction: "You are Aria.",
		History: []message.Message{
			message.NewUser("hi", ts),
			message.NewModel("hello", ts.Add(time.Second)),
		},
		Model:        "gemini-2.5-flash",
		HistoryLimit: 20,
	}
}

func collect(t *testing.T, ch <-chan provider.StreamChunk) (string, error) {
	t.Helper()
	var b strings.Builder
	var err error
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return b.String(), err
			}
			if chunk.Err != nil {
				err = chunk.Err
				continue
			}
			b.WriteString(chunk.Content)
		case <-timeout:
			t.Fatal("timed out waiting for stream")
		}
	}
}

func waitState(t *testing.T, s *session.Store, want session.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", s.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStore_SendBeforeStart(t *testing.T) {
	t.Parallel()

	s := session.NewStore(&providertest.MockBackend{}, nil, nil)
	if _, err := s.Send(context.Background(), "hi"); !errors.Is(err, provider.ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
	if s.State() != session.StateUninitialized {
		t.Errorf("state = %v, want uninitialized", s.State())
	}
}

func TestStore_StartAndSend(t *testing.T) {
	t.Parallel()

	conv := &providertest.ScriptedConversation{Fragments: []string{"Hel", "lo ", "there"}}
	backend := &providertest.MockBackend{
		StartFunc: func(context.Context, provider.Seed) (provider.Conversation, error) { return conv, nil },
	}
	s := session.NewStore(backend, nil, nil)

	if err := s.Start(context.Background(), testParams()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != session.StateReady {
		t.Fatalf("state = %v, want ready", s.State())
	}

	seed := backend.LastSeed()
	if len(seed.History) != 2 || seed.SystemInstruction != "You are Aria." {
		t.Errorf("seed = %+v", seed)
	}

	ch, err := s.Send(context.Background(), "how are you?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	text, err := collect(t, ch)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if text != "Hello there" {
		t.Errorf("text = %q, want %q", text, "Hello there")
	}
	waitState(t, s, session.StateReady)

	if sent := conv.SentTexts(); len(sent) != 1 || sent[0] != "how are you?" {
		t.Errorf("sent = %v", sent)
	}
}

func TestStore_StartFailure(t *testing.T) {
	t.Parallel()

	backend := &providertest.MockBackend{
		StartFunc: func(context.Context, provider.Seed) (provider.Conversation, error) {
			return nil, errors.New("bad key")
		},
	}
	s := session.NewStore(backend, nil, nil)

	err := s.Start(context.Background(), testParams())
	if !errors.Is(err, provider.ErrSessionInit) {
		t.Fatalf("err = %v, want ErrSessionInit", err)
	}
	if s.State() != session.StateUninitialized {
		t.Errorf("state = %v, want uninitialized", s.State())
	}
}

func TestStore_NoBackend(t *testing.T) {
	t.Parallel()

	s := session.NewStore(nil, nil, nil)
	if err := s.Start(context.Background(), testParams()); !errors.Is(err, provider.ErrSessionInit) {
		t.Fatalf("err = %v, want ErrSessionInit", err)
	}
}

func TestStore_StreamErrorReturnsToReady(t *testing.T) {
	t.Parallel()

	boom := errors.New("503")
	conv := &providertest.ScriptedConversation{Fragments: []string{"par"}, Err: boom}
	backend := &providertest.MockBackend{
		StartFunc: func(context.Context, provider.Seed) (provider.Conversation, error) { return conv, nil },
	}
	s := session.NewStore(backend, nil, nil)
	if err := s.Start(context.Background(), testParams()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ch, err := s.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	text, err := collect(t, ch)
	if !errors.Is(err, boom) {
		t.Errorf("stream err = %v, want %v", err, boom)
	}
	if text != "par" {
		t.Errorf("text = %q, want par", text)
	}
	waitState(t, s, session.StateReady)
}

func TestStore_SendWhileStreaming(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	conv := &providertest.ScriptedConversation{Fragments: []string{"x"}, Gate: gate}
	backend := &providertest.MockBackend{
		StartFunc: func(context.Context, provider.Seed) (provider.Conversation, error) { return conv, nil },
	}
	s := session.NewStore(backend, nil, nil)
	if err := s.Start(context.Background(), testParams()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ch, err := s.Send(context.Background(), "one")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := s.Send(context.Background(), "two"); !errors.Is(err, session.ErrStreaming) {
		t.Errorf("second Send err = %v, want ErrStreaming", err)
	}
	close(gate)
	if _, err := collect(t, ch); err != nil {
		t.Fatalf("stream error: %v", err)
	}
}

func TestStore_StartAbandonsStream(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	old := &providertest.ScriptedConversation{Fragments: []string{"stale"}, Gate: gate}
	fresh := &providertest.ScriptedConversation{Fragments: []string{"fresh"}}
	calls := 0
	backend := &providertest.MockBackend{
		StartFunc: func(context.Context, provider.Seed) (provider.Conversation, error) {
			calls++
			if calls == 1 {
				return old, nil
			}
			return fresh, nil
		},
	}
	s := session.NewStore(backend, nil, nil)
	if err := s.Start(context.Background(), testParams()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stale, err := s.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	p := testParams()
	p.Persona = "A knight."
	if err := s.Start(context.Background(), p); err != nil {
		t.Fatalf("restart: %v", err)
	}
	close(gate)

	text, err := collect(t, stale)
	if text != "" {
		t.Errorf("abandoned stream delivered %q", text)
	}
	if !errors.Is(err, session.ErrSuperseded) {
		t.Errorf("abandoned stream error = %v, want ErrSuperseded", err)
	}
	if s.State() != session.StateReady {
		t.Errorf("state = %v, want ready", s.State())
	}

	ch, err := s.Send(context.Background(), "again")
	if err != nil {
		t.Fatalf("Send after restart: %v", err)
	}
	if text, _ := collect(t, ch); text != "fresh" {
		t.Errorf("text = %q, want fresh", text)
	}
}

func TestStore_Ensure(t *testing.T) {
	t.Parallel()

	backend := &providertest.MockBackend{}
	s := session.NewStore(backend, nil, nil)
	p := testParams()

	for range 3 {
		if err := s.Ensure(context.Background(), p); err != nil {
			t.Fatalf("Ensure: %v", err)
		}
	}
	if n := backend.SeedCount(); n != 1 {
		t.Errorf("seeds = %d, want 1", n)
	}

	tests := []struct {
		name   string
		mutate func(*session.Params)
	}{
		{"model", func(p *session.Params) { p.Model = "other" }},
		{"persona", func(p *session.Params) { p.Persona = "A knight." }},
		{"limit", func(p *session.Params) { p.HistoryLimit = 5 }},
		{"instruction", func(p *session.Params) { p.CharacterInstruction = "You are Bram." }},
		{"character", func(p *session.Params) { p.CharacterID = "bram" }},
	}
	for i, tt := range tests {
		next := testParams()
		tt.mutate(&next)
		if err := s.Ensure(context.Background(), next); err != nil {
			t.Fatalf("%s: Ensure: %v", tt.name, err)
		}
		if n := backend.SeedCount(); n != i+2 {
			t.Errorf("%s: seeds = %d, want %d", tt.name, n, i+2)
		}
	}
}

func TestStore_ResetAndSetBackend(t *testing.T) {
	t.Parallel()

	s := session.NewStore(&providertest.MockBackend{}, nil, nil)
	if err := s.Start(context.Background(), testParams()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Reset()
	if s.State() != session.StateUninitialized {
		t.Errorf("after Reset state = %v", s.State())
	}

	if err := s.Start(context.Background(), testParams()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	next := &providertest.MockBackend{KindValue: provider.KindCompatible}
	s.SetBackend(next)
	if s.State() != session.StateUninitialized {
		t.Errorf("after SetBackend state = %v", s.State())
	}
	if s.Backend() != provider.Backend(next) {
		t.Error("backend not replaced")
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := map[session.State]string{
		session.StateUninitialized: "uninitialized",
		session.StateInitializing:  "initializing",
		session.StateReady:         "ready",
		session.StateStreaming:     "streaming",
		session.State(9):           "state(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
