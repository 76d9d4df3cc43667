// Package ctxengine implements LLM context management for roleplay
// conversations: system prompt assembly, the effective history window, and
// compaction of old turns into memory entries.
package ctxengine

// History round limits. One round is a user turn plus a model reply.
const (
	DefaultHistoryLimit = 20
	MinHistoryLimit     = 2
	MaxHistoryLimit     = 50
)

// ContextConfig holds the tuning knobs for the context engine.
type ContextConfig struct {
	// CompactionThreshold triggers compaction when a conversation holds more
	// than this many entries after a turn completes.
	CompactionThreshold int

	// SummarizeCount is the number of oldest entries folded into a memory
	// entry by one compaction. The remainder is kept verbatim.
	SummarizeCount int

	// UnpinMemories re-sorts the whole effective window by timestamp. By
	// default memory entries lead the window regardless of their timestamps.
	UnpinMemories bool
}

// DefaultContextConfig returns the standard configuration.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		CompactionThreshold: 30,
		SummarizeCount:      20,
	}
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// sensible defaults.
func (cfg ContextConfig) withDefaults() ContextConfig {
	if cfg.CompactionThreshold == 0 {
		cfg.CompactionThreshold = 30
	}
	if cfg.SummarizeCount == 0 {
		cfg.SummarizeCount = 20
	}
	return cfg
}

// ClampHistoryLimit maps a user supplied round limit into the supported
// range. Zero or negative values select the default.
func ClampHistoryLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit < MinHistoryLimit:
		return MinHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
