package native

const (
	defaultChatModel  = "gemini-2.5-flash"
	defaultAuxModel   = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"
)

// Config selects the models the backend uses outside chat sessions.
type Config struct {
	// ChatModel is used when a seed names no model.
	// Default: "gemini-2.5-flash"
	ChatModel string

	// AuxModel serves reply suggestions and summaries.
	// Default: "gemini-2.5-flash"
	AuxModel string

	// ImageModel serves portrait generation.
	// Default: "gemini-2.5-flash-image"
	ImageModel string
}

// defaults fills in zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.ChatModel == "" {
		c.ChatModel = defaultChatModel
	}
	if c.AuxModel == "" {
		c.AuxModel = defaultAuxModel
	}
	if c.ImageModel == "" {
		c.ImageModel = defaultImageModel
	}
}
