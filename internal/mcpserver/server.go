// Package mcpserver exposes the auxiliary completions of a chat.Service as
// Model Context Protocol tools, so editors and agents can ask for reply
// suggestions or a recap of a roleplay without going through the gateway.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/rolechat/internal/chat"
)

const serverName = "rolechat"

// Tool names.
const (
	ToolListCharacters = "list_characters"
	ToolSuggestReplies = "suggest_replies"
	ToolSummarize      = "summarize_conversation"
	ToolListModels     = "list_models"
)

// Server wraps an MCP server bound to a chat service.
type Server struct {
	svc    *chat.Service
	mcp    *server.MCPServer
	logger *slog.Logger
}

// New builds the MCP server and registers every tool.
func New(svc *chat.Service, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		logger: logger,
		mcp: server.NewMCPServer(serverName, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions("Roleplay helpers: reply suggestions, conversation recaps and model listing."),
		),
	}
	s.registerTools()
	return s
}

// MCP returns the underlying server, for in-process clients.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves JSON-RPC on in/out until ctx is cancelled or in is
// closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(io.Discard, "", 0))
	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("mcpserver: %w", err)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool(ToolListCharacters,
		mcp.WithDescription("List the characters available for roleplay."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListCharacters)

	s.mcp.AddTool(mcp.NewTool(ToolSuggestReplies,
		mcp.WithDescription("Suggest up to three short replies the user could send next."),
		mcp.WithString("character", mcp.Required(), mcp.Description("Character id")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleSuggest)

	s.mcp.AddTool(mcp.NewTool(ToolSummarize,
		mcp.WithDescription("Summarize the stored conversation with a character."),
		mcp.WithString("character", mcp.Required(), mcp.Description("Character id")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleSummarize)

	s.mcp.AddTool(mcp.NewTool(ToolListModels,
		mcp.WithDescription("List the models offered by the configured provider."),
		mcp.WithBoolean("refresh", mcp.Description("Bypass the cached listing")),
	), s.handleListModels)
}

func (s *Server) handleListCharacters(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chars := s.svc.Characters()
	lines := make([]string, 0, len(chars))
	ids := make([]string, 0, len(chars))
	for _, ch := range chars {
		lines = append(lines, ch.ID+": "+ch.Name)
		ids = append(ids, ch.ID)
	}
	return mcp.NewToolResultStructured(map[string]any{"characters": ids}, strings.Join(lines, "\n")), nil
}

func (s *Server) handleSuggest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, res := s.conversation(ctx, req)
	if res != nil {
		return res, nil
	}
	suggestions, err := c.Suggest(ctx)
	if err != nil {
		return s.toolError(ToolSuggestReplies, err), nil
	}
	return mcp.NewToolResultStructured(
		map[string]any{"suggestions": suggestions},
		strings.Join(suggestions, "\n"),
	), nil
}

func (s *Server) handleSummarize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, res := s.conversation(ctx, req)
	if res != nil {
		return res, nil
	}
	summary, err := c.Summarize(ctx)
	if err != nil {
		return s.toolError(ToolSummarize, err), nil
	}
	if summary == "" {
		return mcp.NewToolResultError("no summary available"), nil
	}
	return mcp.NewToolResultText(summary), nil
}

func (s *Server) handleListModels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req.GetBool("refresh", false) {
		if err := s.svc.RefreshModels(ctx); err != nil {
			return s.toolError(ToolListModels, err), nil
		}
	}
	models, err := s.svc.ListModels(ctx)
	if err != nil {
		return s.toolError(ToolListModels, err), nil
	}
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Name)
	}
	return mcp.NewToolResultStructured(map[string]any{"models": models}, strings.Join(names, "\n")), nil
}

// conversation opens the conversation named by the "character" argument.
// A non-nil result is the error to hand back to the client.
func (s *Server) conversation(ctx context.Context, req mcp.CallToolRequest) (*chat.Conversation, *mcp.CallToolResult) {
	id, err := req.RequireString("character")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	c, err := s.svc.Open(ctx, id)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return c, nil
}

func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("mcp tool failed", "tool", tool, "error", err)
	return mcp.NewToolResultErrorFromErr(tool+" failed", err)
}
