package config

import (
	"path/filepath"

	"github.com/flemzord/rolechat/internal/chat"
	ctxengine "github.com/flemzord/rolechat/internal/context"
	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/internal/security"
)

// ProviderSettings returns the provider configuration.
func (c *Config) ProviderSettings() provider.Config {
	return provider.Config{
		APIKey:  c.Provider.APIKey,
		BaseURL: c.Provider.BaseURL,
		Referer: c.Provider.Referer,
		Title:   c.Provider.Title,
		Timeout: c.Provider.Timeout,
	}
}

// ContextSettings returns the context engine tuning.
func (c *Config) ContextSettings() ctxengine.ContextConfig {
	cfg := ctxengine.DefaultContextConfig()
	if c.Chat.CompactionThreshold > 0 {
		cfg.CompactionThreshold = c.Chat.CompactionThreshold
	}
	if c.Chat.SummarizeCount > 0 {
		cfg.SummarizeCount = c.Chat.SummarizeCount
	}
	if c.Chat.PinMemories != nil {
		cfg.UnpinMemories = !*c.Chat.PinMemories
	}
	return cfg
}

// ChatDefaults returns the settings new conversations start with.
func (c *Config) ChatDefaults() chat.Settings {
	return chat.Settings{
		Model:        c.Chat.Model,
		HistoryLimit: ctxengine.ClampHistoryLimit(c.Chat.HistoryLimit),
	}
}

// CharacterList returns the configured characters.
func (c *Config) CharacterList() []chat.Character {
	out := make([]chat.Character, 0, len(c.Characters))
	for _, ch := range c.Characters {
		out = append(out, chat.Character{
			ID:          ch.ID,
			Name:        ch.Name,
			Instruction: ch.Instruction,
			Greeting:    ch.Greeting,
		})
	}
	return out
}

// Credentials returns the secrets held by cfg, keyed by credential name.
func (c *Config) Credentials() map[string]string {
	return map[string]string{
		security.CredProviderKey:  c.Provider.APIKey,
		security.CredGatewayToken: c.Gateway.Auth.BearerToken,
		security.CredGatewayPass:  c.Gateway.Auth.BasicPass,
	}
}

// AuditLogPath returns the audit trail path resolved against the config
// directory. Empty disables auditing.
func (c *Config) AuditLogPath() string {
	return c.resolve(c.Gateway.AuditLog)
}

// StoragePath returns the database path, resolved against the config
// directory when relative. Empty means in-memory storage.
func (c *Config) StoragePath() string {
	return c.resolve(c.Storage.Path)
}

func (c *Config) resolve(p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}
