// Package assist issues best-effort one-shot completions that support a
// roleplay chat: reply suggestions and conversation summaries. Failures are
// logged and degrade to empty results.
package assist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/pkg/message"
)

const (
	// MaxSuggestions caps the number of suggested replies.
	MaxSuggestions = 3

	suggestionTemperature = 0.7
	summaryTemperature    = 0.5
)

// Client generates suggestions and summaries through a provider.Completer.
// It never touches a live chat session.
type Client struct {
	completer provider.Completer
	logger    *slog.Logger
}

// New creates a Client.
func New(completer provider.Completer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{completer: completer, logger: logger}
}

// SuggestReplies proposes up to three short replies the user could send to
// the character's last line. It returns an empty slice on any failure.
func (c *Client) SuggestReplies(ctx context.Context, characterName, lastModelText string) []string {
	prompt := fmt.Sprintf(`Context: The user is roleplaying with a character named %q.
The character just said: %q.
Task: Generate 3 short, distinct, and natural responses.
Format: Return ONLY the 3 sentences separated by pipes (|). Example: A|B|C.`, characterName, lastModelText)

	text, err := c.complete(ctx, prompt, suggestionTemperature)
	if err != nil {
		c.logger.Warn("reply suggestions failed", "character", characterName, "error", err)
		return []string{}
	}
	return ParseSuggestions(text)
}

// ParseSuggestions splits raw model output on pipes, trims each candidate,
// drops empty ones and keeps at most MaxSuggestions. The result is never nil.
func ParseSuggestions(raw string) []string {
	out := []string{}
	for part := range strings.SplitSeq(raw, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}

// Summarize condenses msgs into a paragraph of under 200 words. An empty
// result means no summary was produced.
func (c *Client) Summarize(ctx context.Context, msgs []message.Message, characterName string) string {
	if len(msgs) == 0 {
		return ""
	}
	prompt := fmt.Sprintf("Summarize the following conversation between User and %s into a concise paragraph (under 200 words). Capture key events, emotional progress, and important facts.\n\nConversation:\n%s",
		characterName, Transcript(msgs, characterName))

	text, err := c.complete(ctx, prompt, summaryTemperature)
	if err != nil {
		c.logger.Warn("summarization failed", "character", characterName, "messages", len(msgs), "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

// Transcript renders msgs one per line as "speaker: text". Memory entries
// appear as parenthetical previous-summary notes.
func Transcript(msgs []message.Message, characterName string) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		speaker := characterName
		if m.Role == message.RoleUser {
			speaker = "User"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		if m.IsMemory {
			b.WriteString("(Previous Summary: ")
			b.WriteString(m.Text)
			b.WriteString(")")
		} else {
			b.WriteString(m.Text)
		}
	}
	return b.String()
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	if c.completer == nil {
		return "", provider.ErrNotInitialized
	}
	return c.completer.Complete(ctx, provider.CompletionRequest{
		Prompt:      prompt,
		Temperature: provider.Float(temperature),
	})
}
