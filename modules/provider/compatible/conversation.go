package compatible

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/flemzord/rolechat/internal/provider"
)

// conversation is the client-side state of one chat: the system prompt and
// the message list resent on every turn.
type conversation struct {
	backend     *Backend
	model       string
	system      string
	temperature *float64

	mu      sync.Mutex
	history []apiMessage
}

// Stream posts system + history + text and streams the reply. Once the
// reply completes, the user turn and the full reply are appended to the
// local history. A failed or abandoned turn leaves the history unchanged.
func (c *conversation) Stream(ctx context.Context, text string) (<-chan provider.StreamChunk, error) {
	user := apiMessage{Role: "user", Content: text}

	c.mu.Lock()
	msgs := make([]apiMessage, 0, len(c.history)+2)
	if c.system != "" {
		msgs = append(msgs, apiMessage{Role: "system", Content: c.system})
	}
	msgs = append(msgs, c.history...)
	msgs = append(msgs, user)
	c.mu.Unlock()

	resp, err := c.backend.post(ctx, "/chat/completions", apiRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, mapHTTPError(resp.StatusCode, resp.Body)
	}

	ch := make(chan provider.StreamChunk, 8)
	go func() {
		defer close(ch)
		defer func() { _ = resp.Body.Close() }()

		full, err := readStream(ctx, resp.Body, func(s string) bool {
			select {
			case ch <- provider.StreamChunk{Content: s}:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			if errors.Is(err, errStopped) || ctx.Err() != nil {
				return
			}
			c.backend.logger.Warn("stream failed", "model", c.model, "error", err)
			select {
			case ch <- provider.StreamChunk{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		c.mu.Lock()
		c.history = append(c.history, user, apiMessage{Role: "assistant", Content: full})
		c.mu.Unlock()
	}()

	return ch, nil
}

// Len returns the number of stored history messages.
func (c *conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}
