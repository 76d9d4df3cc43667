package ctxengine

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/pkg/message"
)

// Fixed sampling for creative roleplay.
const (
	roleplayTemperature = 0.9
	roleplayTopP        = 0.95
	roleplayTopK        = 64
)

// BuildRequest contains the inputs for seeding a conversation.
type BuildRequest struct {
	// CharacterInstruction is the character definition.
	CharacterInstruction string

	// History is the full stored conversation.
	History []message.Message

	// Model is the model identifier the session will use.
	Model string

	// Persona optionally describes the user's in-fiction identity.
	Persona string

	// HistoryLimit is the number of rounds to keep. It is clamped.
	HistoryLimit int

	// Kind selects the memory note framing.
	Kind provider.Kind
}

// Assembler builds the system instruction and history window used to seed
// a provider conversation.
type Assembler struct {
	config ContextConfig
}

// NewAssembler creates an Assembler with the given config.
func NewAssembler(cfg ContextConfig) *Assembler {
	return &Assembler{config: cfg.withDefaults()}
}

// Build assembles the seed for a new conversation.
func (a *Assembler) Build(req BuildRequest) provider.Seed {
	window := EffectiveWindow(req.History, req.HistoryLimit, !a.config.UnpinMemories)
	return provider.Seed{
		Model:             req.Model,
		SystemInstruction: SystemInstruction(req.CharacterInstruction, req.Persona),
		History:           MapTurns(window, req.Kind),
		Sampling: provider.Sampling{
			Temperature: provider.Float(roleplayTemperature),
			TopP:        provider.Float(roleplayTopP),
			TopK:        provider.Float(roleplayTopK),
		},
	}
}

// SystemInstruction folds the persona, when present, into the character
// instruction as a delimited block.
func SystemInstruction(character, persona string) string {
	if strings.TrimSpace(persona) == "" {
		return character
	}
	var b strings.Builder
	b.WriteString(character)
	b.WriteString("\n\n[User Identity/Persona Context]\n")
	b.WriteString("The user you are talking to is defined as follows:\n")
	b.WriteString(persona)
	b.WriteString("\nStay in character and react to this identity accordingly.")
	return b.String()
}

// EffectiveWindow derives the bounded history sent to a provider: every
// memory entry plus the 2×limit most recent regular turns. limit is passed
// through ClampHistoryLimit first, so values below 2 keep 4 turns.
//
// With pin set, memory entries lead the window (ordered among themselves by
// timestamp) and regular turns follow in timestamp order. Without pin the
// union is sorted by timestamp alone, which can interleave a memory entry
// among newer turns when timestamps are not monotonic.
func EffectiveWindow(history []message.Message, limit int, pin bool) []message.Message {
	limit = ClampHistoryLimit(limit)
	memories, turns := message.SplitMemories(history)

	if maxTurns := 2 * limit; len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	byTime := func(a, b message.Message) int { return a.Timestamp.Compare(b.Timestamp) }

	if pin {
		window := make([]message.Message, 0, len(memories)+len(turns))
		window = append(window, memories...)
		slices.SortStableFunc(window, byTime)
		recent := slices.Clone(turns)
		slices.SortStableFunc(recent, byTime)
		return append(window, recent...)
	}

	window := make([]message.Message, 0, len(memories)+len(turns))
	window = append(window, memories...)
	window = append(window, turns...)
	slices.SortStableFunc(window, func(a, b message.Message) int {
		// Memory entries win ties so a summary precedes the turns it shares
		// a timestamp with.
		return cmp.Or(byTime(a, b), cmp.Compare(memoryRank(a), memoryRank(b)))
	})
	return window
}

// MapTurns converts window entries to provider turns. Memory entries become
// user-role notes framed as background context so the model does not answer
// them verbatim.
func MapTurns(window []message.Message, kind provider.Kind) []provider.Turn {
	turns := make([]provider.Turn, 0, len(window))
	for _, m := range window {
		if m.IsMemory {
			turns = append(turns, provider.Turn{Role: provider.TurnUser, Content: memoryNote(m.Text, kind)})
			continue
		}
		role := provider.TurnUser
		if m.Role == message.RoleModel {
			role = provider.TurnModel
		}
		turns = append(turns, provider.Turn{Role: role, Content: m.Text})
	}
	return turns
}

func memoryRank(m message.Message) int {
	if m.IsMemory {
		return 0
	}
	return 1
}

func memoryNote(summary string, kind provider.Kind) string {
	if kind == provider.KindCompatible {
		return fmt.Sprintf("[System Note: Previous conversation summary: %s]", summary)
	}
	return fmt.Sprintf("[System Note: The following is a summary of the previous conversation to provide context: %s]", summary)
}
