package chat

import (
	"time"

	"github.com/flemzord/rolechat/internal/provider"
)

// Outcomes reported to an Observer.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeAbandoned = "abandoned"
	OutcomeDiverged  = "diverged"
)

// Observer receives conversation events for metrics. Implementations must
// be safe for concurrent use.
type Observer interface {
	TurnCompleted(kind provider.Kind, outcome string, elapsed time.Duration)
	CompactionCompleted(outcome string)
	ConversationsOpen(n int)
}

type nopObserver struct{}

func (nopObserver) TurnCompleted(provider.Kind, string, time.Duration) {}
func (nopObserver) CompactionCompleted(string) {}
func (nopObserver) ConversationsOpen(int) {}
