package native

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/flemzord/rolechat/internal/provider"
)

// conversation forwards the SDK stream iterator. The SDK chat records the
// turn in its own history once the stream completes.
type conversation struct {
	chat   chatSession
	model  string
	logger *slog.Logger
}

// Stream sends text and forwards each non-empty text fragment verbatim. An
// SDK error ends the stream as the final chunk.
func (c *conversation) Stream(ctx context.Context, text string) (<-chan provider.StreamChunk, error) {
	ch := make(chan provider.StreamChunk, 8)
	go func() {
		defer close(ch)
		for resp, err := range c.chat.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("stream failed", "model", c.model, "error", err)
				select {
				case ch <- provider.StreamChunk{Err: fmt.Errorf("native: stream: %w", mapError(err))}:
				case <-ctx.Done():
				}
				return
			}
			fragment := responseText(resp)
			if fragment == "" {
				continue
			}
			select {
			case ch <- provider.StreamChunk{Content: fragment}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// responseText returns the text of the first candidate, skipping thought
// parts.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Text()
}
