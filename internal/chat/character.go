package chat

// Character is a roleplay persona the model plays. Characters are managed
// outside this package and handed to the Service at construction.
type Character struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Instruction string `yaml:"instruction" json:"instruction"`

	// Greeting is the opening message seeded into an empty conversation.
	Greeting string `yaml:"greeting" json:"greeting,omitempty"`
}

// Settings are the per-conversation knobs that shape the session key.
type Settings struct {
	Model        string `json:"model"`
	Persona      string `json:"persona,omitempty"`
	HistoryLimit int    `json:"history_limit"`
}
