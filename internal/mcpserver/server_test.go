package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/rolechat/internal/chat"
	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/internal/provider/providertest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, backend *providertest.MockBackend) *client.Client {
	t.Helper()
	svc, err := chat.New(context.Background(), chat.Options{
		Provider: provider.Config{APIKey: "test-key"},
		Characters: []chat.Character{{
			ID:          "aria",
			Name:        "Aria",
			Instruction: "You are Aria, a wandering bard.",
			Greeting:    "Well met, traveler!",
		}},
		Logger: discardLogger(),
		NewBackend: func(context.Context, provider.Config, *slog.Logger) (provider.Backend, error) {
			return backend, nil
		},
	})
	if err != nil {
		t.Fatalf("chat.New: %v", err)
	}
	t.Cleanup(svc.Close)

	c, err := client.NewInProcessClient(New(svc, "test", discardLogger()).MCP())
	if err != nil {
		t.Fatalf("NewInProcessClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return c
}

func call(t *testing.T, c *client.Client, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("content = %T, want text", res.Content[0])
	}
	return tc.Text
}

func TestListTools(t *testing.T) {
	t.Parallel()

	c := newClient(t, &providertest.MockBackend{})
	res, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	got := map[string]bool{}
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, want := range []string{ToolListCharacters, ToolSuggestReplies, ToolSummarize, ToolListModels} {
		if !got[want] {
			t.Errorf("tool %s not registered", want)
		}
	}
}

func TestTools(t *testing.T) {
	t.Parallel()

	backend := &providertest.MockBackend{
		CompleteFunc: func(_ context.Context, req provider.CompletionRequest) (string, error) {
			if strings.Contains(req.Prompt, "Summarize") {
				return "Aria greeted a traveler.", nil
			}
			return "Hello there.|Who are you?|Farewell.", nil
		},
		ListFunc: func(context.Context) ([]provider.Model, error) {
			return []provider.Model{{Name: "gemini-2.5-flash"}, {Name: "gemini-2.5-pro"}}, nil
		},
	}
	c := newClient(t, backend)

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		want    string
		isError bool
	}{
		{name: "characters", tool: ToolListCharacters, want: "aria: Aria"},
		{name: "suggestions", tool: ToolSuggestReplies, args: map[string]any{"character": "aria"}, want: "Hello there.\nWho are you?\nFarewell."},
		{name: "summary", tool: ToolSummarize, args: map[string]any{"character": "aria"}, want: "Aria greeted a traveler."},
		{name: "models", tool: ToolListModels, args: map[string]any{"refresh": true}, want: "gemini-2.5-flash\ngemini-2.5-pro"},
		{name: "unknown character", tool: ToolSuggestReplies, args: map[string]any{"character": "zed"}, isError: true},
		{name: "missing character", tool: ToolSummarize, isError: true},
	}
	for _, tt := range tests {
		res := call(t, c, tt.tool, tt.args)
		if res.IsError != tt.isError {
			t.Errorf("%s: IsError = %v, want %v (%s)", tt.name, res.IsError, tt.isError, text(t, res))
			continue
		}
		if !tt.isError && text(t, res) != tt.want {
			t.Errorf("%s: text = %q, want %q", tt.name, text(t, res), tt.want)
		}
	}
}

func TestListModels_ProviderError(t *testing.T) {
	t.Parallel()

	backend := &providertest.MockBackend{
		ListFunc: func(context.Context) ([]provider.Model, error) {
			return nil, provider.ErrRateLimit
		},
	}
	res := call(t, newClient(t, backend), ToolListModels, nil)
	if !res.IsError || !strings.Contains(text(t, res), "rate limited") {
		t.Errorf("result = %+v", res)
	}
}

func TestServeStdio_StopsOnEOF(t *testing.T) {
	t.Parallel()

	svc, err := chat.New(context.Background(), chat.Options{
		Logger: discardLogger(),
		NewBackend: func(context.Context, provider.Config, *slog.Logger) (provider.Backend, error) {
			return &providertest.MockBackend{}, nil
		},
	})
	if err != nil {
		t.Fatalf("chat.New: %v", err)
	}
	t.Cleanup(svc.Close)

	var out strings.Builder
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")
	if err := New(svc, "test", discardLogger()).ServeStdio(context.Background(), in, &out); err != nil {
		t.Fatalf("ServeStdio: %v", err)
	}
	if !strings.Contains(out.String(), `"id":1`) {
		t.Errorf("output = %q", out.String())
	}
}
