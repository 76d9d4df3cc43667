package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flemzord/rolechat/internal/chat"
	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/internal/provider/providertest"
	"github.com/flemzord/rolechat/internal/security"
	"github.com/flemzord/rolechat/internal/security/securitytest"
	"github.com/flemzord/rolechat/internal/telemetry"
)

var testCharacter = chat.Character{
	ID:          "aria",
	Name:        "Aria",
	Instruction: "You are Aria, a wandering bard.",
	Greeting:    "Well met, traveler!",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// replying returns a backend whose conversations answer every turn with
// fragments.
func replying(fragments ...string) *providertest.MockBackend {
	return &providertest.MockBackend{
		StartFunc: func(context.Context, provider.Seed) (provider.Conversation, error) {
			return &providertest.ScriptedConversation{Fragments: fragments}, nil
		},
		CompleteFunc: func(context.Context, provider.CompletionRequest) (string, error) {
			return "Play a song.|Ask about the road.|Leave.", nil
		},
	}
}

type fixture struct {
	gw      *Gateway
	svc     *chat.Service
	backend *providertest.MockBackend
	creds   *security.CredentialStore
	audit   *securitytest.AuditRecorder
	metrics *telemetry.Metrics
}

type fixtureOption func(*Options)

func newFixture(t *testing.T, backend *providertest.MockBackend, opts ...fixtureOption) *fixture {
	t.Helper()
	metrics := telemetry.NewMetrics()
	svc, err := chat.New(context.Background(), chat.Options{
		Provider:   provider.Config{APIKey: "test-key"},
		Characters: []chat.Character{testCharacter},
		Defaults:   chat.Settings{Model: "gemini-2.5-flash"},
		Logger:     discardLogger(),
		Observer:   metrics,
		NewBackend: func(context.Context, provider.Config, *slog.Logger) (provider.Backend, error) {
			return backend, nil
		},
	})
	if err != nil {
		t.Fatalf("chat.New: %v", err)
	}
	t.Cleanup(svc.Close)

	audit, rec := securitytest.NewAuditLogger()
	f := &fixture{
		svc:     svc,
		backend: backend,
		creds:   security.NewCredentialStore(),
		audit:   rec,
		metrics: metrics,
	}
	o := Options{
		Service:     svc,
		Credentials: f.creds,
		Audit:       audit,
		Metrics:     f.metrics,
		Logger:      discardLogger(),
		Version:     "test",
	}
	for _, fn := range opts {
		fn(&o)
	}
	f.gw, err = New(o)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.gw.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body []byte) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		}
	}
	return events
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}
