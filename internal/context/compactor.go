package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/flemzord/rolechat/pkg/message"
)

var (
	// ErrCompactionFailed indicates that compaction could not produce a summary.
	ErrCompactionFailed = errors.New("ctxengine: compaction failed")

	// ErrHistoryDiverged indicates the stored history no longer extends the
	// snapshot a compaction was computed from.
	ErrHistoryDiverged = errors.New("ctxengine: history diverged from compaction snapshot")
)

// Summarizer produces a condensed summary of a conversation segment.
// An empty result means no summary could be produced.
type Summarizer interface {
	Summarize(ctx context.Context, messages []message.Message, characterName string) string
}

// Compaction is the outcome of summarizing the oldest part of a snapshot.
type Compaction struct {
	// Memory is the new memory entry replacing the summarized prefix.
	Memory message.Message

	// Summarized is the snapshot prefix that Memory replaces.
	Summarized []message.Message

	// Snapshot is the full history the compaction was computed from.
	Snapshot []message.Message
}

// Compactor folds the oldest entries of a long conversation into a single
// memory entry.
type Compactor struct {
	summarizer Summarizer
	config     ContextConfig
}

// NewCompactor creates a Compactor.
func NewCompactor(summarizer Summarizer, cfg ContextConfig) *Compactor {
	return &Compactor{
		summarizer: summarizer,
		config:     cfg.withDefaults(),
	}
}

// ShouldCompact reports whether history exceeds the compaction threshold.
// All entries count, memory entries included.
func (c *Compactor) ShouldCompact(history []message.Message) bool {
	return len(history) > c.config.CompactionThreshold
}

// Split partitions history into the older slice to summarize and the
// recent slice kept verbatim.
func (c *Compactor) Split(history []message.Message) (older, recent []message.Message) {
	n := min(c.config.SummarizeCount, len(history))
	return history[:n], history[n:]
}

// Summarize requests a summary of the oldest entries of snapshot. The
// snapshot is not modified. On failure nothing is returned and history must
// stay untouched.
func (c *Compactor) Summarize(ctx context.Context, snapshot []message.Message, characterName string) (Compaction, error) {
	if c.summarizer == nil {
		return Compaction{}, fmt.Errorf("%w: no summarizer configured", ErrCompactionFailed)
	}
	snapshot = message.Clone(snapshot)
	older, _ := c.Split(snapshot)
	if len(older) == 0 {
		return Compaction{}, fmt.Errorf("%w: nothing to summarize", ErrCompactionFailed)
	}

	summary := strings.TrimSpace(c.summarizer.Summarize(ctx, older, characterName))
	if summary == "" {
		return Compaction{}, fmt.Errorf("%w: empty summary", ErrCompactionFailed)
	}
	if err := ctx.Err(); err != nil {
		return Compaction{}, fmt.Errorf("%w: %w", ErrCompactionFailed, err)
	}

	// Stamp with the last summarized entry so stored order stays monotonic.
	memory := message.NewMemory(summary, older[len(older)-1].Timestamp)
	return Compaction{Memory: memory, Summarized: older, Snapshot: snapshot}, nil
}

// Compact summarizes the oldest entries of history and returns
// [memory, ...recent].
func (c *Compactor) Compact(ctx context.Context, history []message.Message, characterName string) ([]message.Message, error) {
	result, err := c.Summarize(ctx, history, characterName)
	if err != nil {
		return nil, err
	}
	return Rebase(result, history)
}

// Rebase applies a compaction to current, the history as stored now. Turns
// appended after the snapshot was taken are preserved. current must still
// begin with the summarized prefix, otherwise ErrHistoryDiverged is returned
// and the caller keeps current as is.
func Rebase(result Compaction, current []message.Message) ([]message.Message, error) {
	n := len(result.Summarized)
	if n == 0 || len(current) < n || !slices.EqualFunc(current[:n], result.Summarized, sameEntry) {
		return nil, ErrHistoryDiverged
	}
	out := make([]message.Message, 0, len(current)-n+1)
	out = append(out, result.Memory)
	return append(out, current[n:]...), nil
}

// sameEntry also compares text so an edit inside the summarized prefix
// invalidates the compaction.
func sameEntry(a, b message.Message) bool {
	return a.ID == b.ID && a.Text == b.Text
}
