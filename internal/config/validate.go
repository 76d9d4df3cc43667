package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	ctxengine "github.com/flemzord/rolechat/internal/context"
)

// Validate checks the structural validity of a Config and returns every
// problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, validateProvider(cfg.Provider)...)
	errs = append(errs, validateChat(cfg.Chat)...)
	errs = append(errs, validateGateway(cfg.Gateway)...)
	errs = append(errs, validateLog(cfg.Log)...)
	errs = append(errs, validateCharacters(cfg.Characters)...)

	return errors.Join(errs...)
}

func validateProvider(p ProviderConfig) []error {
	var errs []error
	if p.BaseURL != "" {
		u, err := url.Parse(p.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: provider.base_url %q is not an absolute URL", p.BaseURL))
		}
	}
	if p.Timeout < 0 {
		errs = append(errs, errors.New("config: provider.timeout must not be negative"))
	}
	return errs
}

func validateChat(c ChatConfig) []error {
	var errs []error
	if c.HistoryLimit != 0 && (c.HistoryLimit < ctxengine.MinHistoryLimit || c.HistoryLimit > ctxengine.MaxHistoryLimit) {
		errs = append(errs, fmt.Errorf("config: chat.history_limit must be between %d and %d, got %d",
			ctxengine.MinHistoryLimit, ctxengine.MaxHistoryLimit, c.HistoryLimit))
	}
	if c.CompactionThreshold < 0 || c.SummarizeCount < 0 {
		errs = append(errs, errors.New("config: chat compaction settings must not be negative"))
	}
	if c.CompactionThreshold > 0 && c.SummarizeCount >= c.CompactionThreshold {
		errs = append(errs, fmt.Errorf("config: chat.summarize_count (%d) must be below compaction_threshold (%d)",
			c.SummarizeCount, c.CompactionThreshold))
	}
	return errs
}

func validateGateway(g GatewayConfig) []error {
	var errs []error
	if _, _, err := net.SplitHostPort(g.Bind); err != nil {
		errs = append(errs, fmt.Errorf("config: gateway.bind %q: %w", g.Bind, err))
	}
	if g.Auth.BearerToken != "" && g.Auth.BasicUser != "" {
		errs = append(errs, errors.New("config: gateway.auth: set either bearer_token or basic credentials, not both"))
	}
	if (g.Auth.BasicUser == "") != (g.Auth.BasicPass == "") {
		errs = append(errs, errors.New("config: gateway.auth: basic_user and basic_pass must be set together"))
	}
	return errs
}

func validateLog(l LogConfig) []error {
	var errs []error
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", l.Level))
	}
	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q is not one of text, json", l.Format))
	}
	return errs
}

func validateCharacters(chars []CharacterConfig) []error {
	var errs []error
	seen := make(map[string]int, len(chars))
	for i, ch := range chars {
		if strings.TrimSpace(ch.ID) == "" {
			errs = append(errs, fmt.Errorf("config: characters[%d]: id is required", i))
		} else if prev, dup := seen[ch.ID]; dup {
			errs = append(errs, fmt.Errorf("config: characters[%d]: id %q already used by characters[%d]", i, ch.ID, prev))
		} else {
			seen[ch.ID] = i
		}
		if strings.TrimSpace(ch.Instruction) == "" {
			errs = append(errs, fmt.Errorf("config: characters[%d]: instruction or instruction_file is required", i))
		}
	}
	return errs
}
