package ctxengine_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flemzord/rolechat/pkg/message"
)

var baseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// mockSummarizer implements ctxengine.Summarizer for tests.
type mockSummarizer struct {
	result string

	mu       sync.Mutex
	called   int
	received []message.Message
	name     string
}

func (m *mockSummarizer) Summarize(_ context.Context, msgs []message.Message, name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	m.received = message.Clone(msgs)
	m.name = name
	return m.result
}

// makeTestMessages creates n alternating user/model messages one minute apart.
func makeTestMessages(n int) []message.Message {
	msgs := make([]message.Message, n)
	for i := range msgs {
		ts := baseTime.Add(time.Duration(i) * time.Minute)
		text := fmt.Sprintf("msg-%d", i)
		if i%2 == 0 {
			msgs[i] = message.NewUser(text, ts)
		} else {
			msgs[i] = message.NewModel(text, ts)
		}
	}
	return msgs
}
