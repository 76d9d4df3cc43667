package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/rolechat/internal/chat"
	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/internal/provider/providertest"
	"github.com/flemzord/rolechat/internal/security"
	"github.com/flemzord/rolechat/pkg/message"
)

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, replying())
	rec := f.do(t, http.MethodGet, "/health", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[HealthResponse](t, rec); got.Status != "ok" || got.Provider != provider.KindNative {
		t.Errorf("health = %+v", got)
	}
}

func TestHealth_DegradedWithoutProvider(t *testing.T) {
	t.Parallel()

	svc, err := chat.New(context.Background(), chat.Options{
		Characters: []chat.Character{testCharacter},
		Logger:     discardLogger(),
		NewBackend: func(context.Context, provider.Config, *slog.Logger) (provider.Backend, error) {
			return nil, provider.ErrConfig
		},
	})
	if err != nil {
		t.Fatalf("chat.New: %v", err)
	}
	t.Cleanup(svc.Close)
	gw, err := New(Options{Service: svc, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if got := decodeBody[HealthResponse](t, rec); got.Status != "degraded" || got.Error == "" {
		t.Errorf("health = %+v", got)
	}
}

func TestSend_StreamsFragments(t *testing.T) {
	t.Parallel()

	f := newFixture(t, replying("The ", "road ", "is long."))
	rec := f.do(t, http.MethodPost, "/api/chats/aria/messages", `{"text":"Where to?"}`)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	events := parseSSE(t, rec.Body.Bytes())
	if len(events) != 4 {
		t.Fatalf("events = %+v, want 3 fragments and done", events)
	}
	var joined strings.Builder
	for _, ev := range events[:3] {
		if ev.name != eventFragment {
			t.Fatalf("event %q, want fragment", ev.name)
		}
		var fe FragmentEvent
		if err := json.Unmarshal([]byte(ev.data), &fe); err != nil {
			t.Fatal(err)
		}
		joined.WriteString(fe.Text)
	}
	var done message.Message
	if events[3].name != eventDone || json.Unmarshal([]byte(events[3].data), &done) != nil {
		t.Fatalf("last event = %+v", events[3])
	}
	if done.Text != joined.String() || done.Text != "The road is long." {
		t.Errorf("done = %q, fragments = %q", done.Text, joined.String())
	}

	msgs := decodeBody[[]message.Message](t, f.do(t, http.MethodGet, "/api/chats/aria/messages", ""))
	if len(msgs) != 3 || msgs[2].Text != "The road is long." {
		t.Errorf("history = %+v", msgs)
	}
}

func TestSend_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "unknown character", path: "/api/chats/zed/messages", body: `{"text":"hi"}`, status: http.StatusNotFound},
		{name: "empty text", path: "/api/chats/aria/messages", body: `{"text":"  "}`, status: http.StatusBadRequest},
		{name: "bad json", path: "/api/chats/aria/messages", body: `{"text":`, status: http.StatusBadRequest},
		{name: "edit unknown message", path: "/api/chats/aria/messages/nope", body: `{"text":"hi"}`, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, replying("ok"))
			method := http.MethodPost
			if strings.Contains(tt.path, "/messages/") {
				method = http.MethodPut
			}
			expectStatus(t, f.do(t, method, tt.path, tt.body), tt.status)
		})
	}
}

func TestSend_FailureBeforeFirstFragment(t *testing.T) {
	t.Parallel()

	backend := replying()
	backend.StartFunc = func(context.Context, provider.Seed) (provider.Conversation, error) {
		return nil, provider.ErrSessionInit
	}
	f := newFixture(t, backend)
	rec := f.do(t, http.MethodPost, "/api/chats/aria/messages", `{"text":"hi"}`)
	expectStatus(t, rec, http.StatusBadGateway)
	got := decodeBody[TurnError](t, rec)
	if got.Error == "" || got.Message.Text != chat.ErrorMarker || got.Message.Role != message.RoleModel {
		t.Errorf("body = %+v, want the stored error marker", got)
	}
}

func TestHealth_DegradedAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	backend := replying()
	backend.StartFunc = func(context.Context, provider.Seed) (provider.Conversation, error) {
		return nil, provider.ErrSessionInit
	}
	f := newFixture(t, backend)
	for range 5 {
		f.do(t, http.MethodPost, "/api/chats/aria/messages", `{"text":"hi"}`)
	}

	rec := f.do(t, http.MethodGet, "/health", "")
	expectStatus(t, rec, http.StatusServiceUnavailable)
	got := decodeBody[HealthResponse](t, rec)
	if got.Status != "degraded" || got.ProviderState != "failing" || got.Failures != 5 {
		t.Errorf("health = %+v", got)
	}
}

func TestSend_FailureMidStream(t *testing.T) {
	t.Parallel()

	backend := replying()
	backend.StartFunc = func(context.Context, provider.Seed) (provider.Conversation, error) {
		return &providertest.ScriptedConversation{Fragments: []string{"Hm"}, Err: provider.ErrTransport}, nil
	}
	f := newFixture(t, backend)
	rec := f.do(t, http.MethodPost, "/api/chats/aria/messages", `{"text":"hi"}`)
	expectStatus(t, rec, http.StatusOK)

	events := parseSSE(t, rec.Body.Bytes())
	last := events[len(events)-1]
	if last.name != eventError {
		t.Fatalf("last event = %+v", last)
	}
	var te TurnError
	if err := json.Unmarshal([]byte(last.data), &te); err != nil {
		t.Fatal(err)
	}
	if te.Message.Text != chat.ErrorMarker {
		t.Errorf("marker = %q", te.Message.Text)
	}
}

func TestEditAndRegenerate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, replying("Aye."))
	f.do(t, http.MethodPost, "/api/chats/aria/messages", `{"text":"first"}`)
	msgs := decodeBody[[]message.Message](t, f.do(t, http.MethodGet, "/api/chats/aria/messages", ""))
	userID := msgs[1].ID

	rec := f.do(t, http.MethodPut, "/api/chats/aria/messages/"+userID, `{"text":"edited"}`)
	expectStatus(t, rec, http.StatusOK)
	msgs = decodeBody[[]message.Message](t, f.do(t, http.MethodGet, "/api/chats/aria/messages", ""))
	if len(msgs) != 3 || msgs[1].Text != "edited" {
		t.Errorf("after edit = %+v", msgs)
	}

	rec = f.do(t, http.MethodPost, "/api/chats/aria/regenerate", "")
	expectStatus(t, rec, http.StatusOK)
	if events := parseSSE(t, rec.Body.Bytes()); events[len(events)-1].name != eventDone {
		t.Errorf("regenerate events = %+v", events)
	}
	if types := f.audit.Types(); len(types) != 1 || types[0] != security.EventHistoryRewrite {
		t.Errorf("audit = %v", types)
	}
}

func TestClearSettingsAndChat(t *testing.T) {
	t.Parallel()

	f := newFixture(t, replying("Aye."))
	f.do(t, http.MethodPost, "/api/chats/aria/messages", `{"text":"first"}`)

	expectStatus(t, f.do(t, http.MethodDelete, "/api/chats/aria/messages", ""), http.StatusNoContent)

	rec := f.do(t, http.MethodPatch, "/api/chats/aria/settings", `{"persona":"A tired knight","history_limit":99}`)
	expectStatus(t, rec, http.StatusOK)
	settings := decodeBody[chat.Settings](t, rec)
	if settings.Persona != "A tired knight" || settings.HistoryLimit != 50 || settings.Model != "gemini-2.5-flash" {
		t.Errorf("settings = %+v", settings)
	}

	got := decodeBody[ChatResponse](t, f.do(t, http.MethodGet, "/api/chats/aria/", ""))
	if got.Character.Name != "Aria" || len(got.Messages) != 1 || got.Settings.Persona != "A tired knight" {
		t.Errorf("chat = %+v", got)
	}
	if !strings.Contains(f.backend.LastSeed().SystemInstruction, "A tired knight") {
		t.Error("persona missing from the restarted session")
	}
}

func TestSuggestionsSummaryAndMemories(t *testing.T) {
	t.Parallel()

	f := newFixture(t, replying("Aye."))
	f.do(t, http.MethodPost, "/api/chats/aria/messages", `{"text":"hello"}`)

	sugg := decodeBody[SuggestionsResponse](t, f.do(t, http.MethodGet, "/api/chats/aria/suggestions", ""))
	if len(sugg.Suggestions) != 3 {
		t.Errorf("suggestions = %v", sugg.Suggestions)
	}
	sum := decodeBody[SummaryResponse](t, f.do(t, http.MethodGet, "/api/chats/aria/summary", ""))
	if sum.Summary == "" {
		t.Error("empty summary")
	}

	rec := f.do(t, http.MethodPost, "/api/chats/aria/memories", "")
	expectStatus(t, rec, http.StatusCreated)
	mem := decodeBody[message.Message](t, rec)
	if !mem.IsMemory {
		t.Fatalf("memory = %+v", mem)
	}
	expectStatus(t, f.do(t, http.MethodDelete, "/api/chats/aria/memories/"+mem.ID, ""), http.StatusNoContent)
	expectStatus(t, f.do(t, http.MethodDelete, "/api/chats/aria/memories/"+mem.ID, ""), http.StatusNotFound)
}

func TestSuggestions_FailureIsEmptyList(t *testing.T) {
	t.Parallel()

	backend := replying("Aye.")
	backend.CompleteFunc = func(context.Context, provider.CompletionRequest) (string, error) {
		return "", provider.ErrTransport
	}
	f := newFixture(t, backend)

	rec := f.do(t, http.MethodGet, "/api/chats/aria/suggestions", "")
	expectStatus(t, rec, http.StatusOK)
	if body := strings.TrimSpace(rec.Body.String()); body != `{"suggestions":[]}` {
		t.Errorf("body = %s, want an empty list", body)
	}
}

func TestProviderModelsCharactersImages(t *testing.T) {
	t.Parallel()

	backend := replying()
	backend.ListFunc = func(context.Context) ([]provider.Model, error) {
		return []provider.Model{{Name: "gemini-2.5-flash"}}, nil
	}
	backend.ImageFunc = func(context.Context, string) (provider.Image, error) {
		return provider.Image{MIMEType: "image/png", Data: []byte{1, 2, 3}}, nil
	}
	f := newFixture(t, backend)

	models := decodeBody[[]provider.Model](t, f.do(t, http.MethodGet, "/api/models?refresh=true", ""))
	if len(models) != 1 {
		t.Errorf("models = %+v", models)
	}

	chars := decodeBody[[]characterJSON](t, f.do(t, http.MethodGet, "/api/characters", ""))
	if len(chars) != 1 || chars[0].ID != "aria" {
		t.Errorf("characters = %+v", chars)
	}

	rec := f.do(t, http.MethodPut, "/api/provider", `{"api_key":"sk-or-v1-new","base_url":"https://openrouter.ai/api/v1"}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[ProviderResponse](t, rec); got.Kind != provider.KindCompatible || !got.HasKey {
		t.Errorf("provider = %+v", got)
	}
	if v, _ := f.creds.Get(security.CredProviderKey); v != "sk-or-v1-new" {
		t.Errorf("credential = %q", v)
	}

	img := decodeBody[ImageResponse](t, f.do(t, http.MethodPost, "/api/images", `{"prompt":"a bard"}`))
	if !strings.HasPrefix(img.DataURL, "data:image/png;base64,") {
		t.Errorf("data url = %q", img.DataURL)
	}
	expectStatus(t, f.do(t, http.MethodPost, "/api/images", `{"prompt":""}`), http.StatusBadRequest)
}

func TestAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, replying(), func(o *Options) { o.Config.BasicUser = "admin" })

	// Open until a secret is configured.
	expectStatus(t, f.do(t, http.MethodGet, "/api/characters", ""), http.StatusOK)

	f.creds.Set(security.CredGatewayToken, "s3cret-token")
	f.creds.Set(security.CredGatewayPass, "pw")

	tests := []struct {
		name   string
		header []string
		status int
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "wrong bearer", header: []string{"Authorization", "Bearer nope"}, status: http.StatusUnauthorized},
		{name: "bearer", header: []string{"Authorization", "Bearer s3cret-token"}, status: http.StatusOK},
		{name: "basic", header: []string{"Authorization", "Basic YWRtaW46cHc="}, status: http.StatusOK},
	}
	for _, tt := range tests {
		rec := f.do(t, http.MethodGet, "/api/characters", "", tt.header...)
		if rec.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.status)
		}
	}
	expectStatus(t, f.do(t, http.MethodGet, "/health", ""), http.StatusOK)

	failures := 0
	for _, typ := range f.audit.Types() {
		if typ == security.EventAuthFailure {
			failures++
		}
	}
	if failures != 2 {
		t.Errorf("auth failures audited = %d, want 2", failures)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, replying("ok"), func(o *Options) {
		o.Limiter = security.NewRateLimiter(security.RateLimitConfig{TurnsPerMin: 1})
	})
	expectStatus(t, f.do(t, http.MethodPost, "/api/chats/aria/messages", `{"text":"one"}`), http.StatusOK)
	expectStatus(t, f.do(t, http.MethodPost, "/api/chats/aria/messages", `{"text":"two"}`), http.StatusTooManyRequests)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, replying("ok"))
	f.do(t, http.MethodPost, "/api/chats/aria/messages", `{"text":"one"}`)
	rec := f.do(t, http.MethodGet, "/metrics", "")
	expectStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	for _, want := range []string{`rolechat_turns_total{outcome="ok",provider="native"} 1`, "rolechat_http_requests_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestWebSocket(t *testing.T) {
	t.Parallel()

	f := newFixture(t, replying("Hail", ", friend."))
	srv := httptest.NewServer(f.gw.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chats/aria", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	send := func(in InboundFrame) {
		data, _ := json.Marshal(in)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	read := func() OutboundFrame {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		var out OutboundFrame
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatal(err)
		}
		return out
	}

	send(InboundFrame{ID: "1", Type: FrameSend, Text: "Hello"})
	var text strings.Builder
	for {
		out := read()
		if out.ID != "1" {
			t.Fatalf("frame id = %q", out.ID)
		}
		if out.Type == FrameFragment {
			text.WriteString(out.Text)
			continue
		}
		if out.Type != FrameDone || out.Message == nil || out.Message.Text != "Hail, friend." {
			t.Fatalf("final frame = %+v", out)
		}
		break
	}
	if text.String() != "Hail, friend." {
		t.Errorf("fragments = %q", text.String())
	}

	send(InboundFrame{ID: "2", Type: "dance"})
	if out := read(); out.Type != FrameError || out.ID != "2" {
		t.Errorf("unknown frame reply = %+v", out)
	}

	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{chat.ErrBusy, http.StatusConflict},
		{chat.ErrNotEnoughTurns, http.StatusUnprocessableEntity},
		{provider.ErrRateLimit, http.StatusTooManyRequests},
		{provider.ErrUnsupported, http.StatusNotImplemented},
		{chat.ErrNoProvider, http.StatusServiceUnavailable},
		{security.ErrBodyTooLarge, http.StatusRequestEntityTooLarge},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
