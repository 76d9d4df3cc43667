// Package config handles YAML configuration loading, environment variable
// expansion, environment overrides and validation for rolechat.
package config

import (
	"time"

	"github.com/flemzord/rolechat/internal/security"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Provider   ProviderConfig    `yaml:"provider"`
	Chat       ChatConfig        `yaml:"chat"`
	Storage    StorageConfig     `yaml:"storage"`
	Gateway    GatewayConfig     `yaml:"gateway"`
	Telemetry  TelemetryConfig   `yaml:"telemetry"`
	Cron       CronConfig        `yaml:"cron"`
	Log        LogConfig         `yaml:"log"`
	Characters []CharacterConfig `yaml:"characters" env:"-"`

	// dir is the directory of the loaded file. Relative paths resolve
	// against it.
	dir string
}

// ProviderConfig selects and authenticates the language-model endpoint.
// An empty BaseURL selects the native Gemini API; a URL containing
// "openrouter" or "v1" selects the OpenAI-compatible path.
type ProviderConfig struct {
	APIKey  string        `yaml:"api_key" env:"ROLECHAT_API_KEY"`
	BaseURL string        `yaml:"base_url" env:"ROLECHAT_BASE_URL"`
	Referer string        `yaml:"referer"`
	Title   string        `yaml:"title"`
	Timeout time.Duration `yaml:"timeout"`
}

// ChatConfig holds conversation defaults and context tuning.
type ChatConfig struct {
	Model               string        `yaml:"model" env:"ROLECHAT_MODEL"`
	HistoryLimit        int           `yaml:"history_limit"`
	CompactionThreshold int           `yaml:"compaction_threshold"`
	SummarizeCount      int           `yaml:"summarize_count"`
	PinMemories         *bool         `yaml:"pin_memories,omitempty"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	ModelsTTL           time.Duration `yaml:"models_ttl"`
}

// StorageConfig selects the message store. An empty Path keeps history
// in memory only.
type StorageConfig struct {
	Path        string        `yaml:"path" env:"ROLECHAT_DB"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// GatewayConfig configures the HTTP and WebSocket server.
type GatewayConfig struct {
	Bind      string                   `yaml:"bind" env:"ROLECHAT_BIND"`
	Auth      AuthConfig               `yaml:"auth"`
	RateLimit security.RateLimitConfig `yaml:"rate_limit"`

	// AuditLog is a JSONL file receiving security events. Relative paths
	// resolve against the config directory. Empty disables the trail.
	AuditLog string `yaml:"audit_log"`
}

// AuthConfig protects the gateway API. Either a bearer token or basic
// credentials may be set; both empty disables auth.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// TelemetryConfig enables metrics and tracing export.
type TelemetryConfig struct {
	Metrics      *bool  `yaml:"metrics,omitempty"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name"`
}

// CronConfig overrides background job schedules.
type CronConfig struct {
	Eviction     string `yaml:"eviction"`
	ModelRefresh string `yaml:"model_refresh"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"ROLECHAT_LOG_LEVEL"`
	Format string `yaml:"format"`
}

// CharacterConfig defines a character. The instruction may be inline or
// read from InstructionFile.
type CharacterConfig struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Instruction     string `yaml:"instruction"`
	InstructionFile string `yaml:"instruction_file"`
	Greeting        string `yaml:"greeting"`
}

// Defaults applied by ApplyDefaults.
const (
	DefaultModel       = "gemini-2.5-flash"
	DefaultBind        = "127.0.0.1:8080"
	DefaultIdleTimeout = 2 * time.Hour
	DefaultModelsTTL   = 10 * time.Minute
	DefaultTitle       = "Rolechat"
	DefaultServiceName = "rolechat"
)

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.Provider.Title == "" {
		c.Provider.Title = DefaultTitle
	}
	if c.Chat.Model == "" {
		c.Chat.Model = DefaultModel
	}
	if c.Chat.IdleTimeout == 0 {
		c.Chat.IdleTimeout = DefaultIdleTimeout
	}
	if c.Chat.ModelsTTL == 0 {
		c.Chat.ModelsTTL = DefaultModelsTTL
	}
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = DefaultBind
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// MetricsEnabled reports whether /metrics is served. Defaults to true.
func (c *Config) MetricsEnabled() bool {
	return c.Telemetry.Metrics == nil || *c.Telemetry.Metrics
}

// Dir returns the directory of the loaded configuration file.
func (c *Config) Dir() string { return c.dir }
