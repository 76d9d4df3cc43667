// Package security holds the credential store, log and config redaction,
// per-client rate limiting, request validation and the audit trail used by
// the gateway.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map and attribute keys that likely hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|pass$|api_?key|credential|authorization)`)

// rule is one pattern and its replacement template.
type rule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor replaces secret values in strings and maps with RedactPlaceholder.
// It matches known provider key formats and literal values registered at
// runtime, such as the configured API key. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	rules    []rule
	literals []string
}

// NewRedactor creates a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	r := &Redactor{}
	for _, re := range DefaultPatterns() {
		r.rules = append(r.rules, rule{re: re, repl: RedactPlaceholder})
	}
	// Gemini REST URLs carry the key as a query parameter.
	r.rules = append(r.rules, rule{
		re:   regexp.MustCompile(`([?&]key=)[^&\s"']+`),
		repl: "${1}" + RedactPlaceholder,
	})
	return r
}

// AddPattern redacts every match of pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{re: pattern, repl: RedactPlaceholder})
}

// AddLiteral adds a literal secret value. Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// SyncCredentials replaces the literal values with the current contents of
// store. Call it after the provider key or gateway credentials change.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	values := store.Values()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = values
}

// Redact replaces known secret patterns and literal values in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	rules := r.rules
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, ru := range rules {
		s = ru.re.ReplaceAllString(s, ru.repl)
	}
	return s
}

// RedactMap walks m in place. String values under secret-looking keys are
// replaced outright; other strings go through Redact. Used when printing
// the effective configuration.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if IsSecretKey(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = RedactPlaceholder
				continue
			}
		}
		switch val := v.(type) {
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					r.RedactMap(sub)
				}
			}
		case string:
			if redacted := r.Redact(val); redacted != val {
				m[k] = redacted
			}
		}
	}
}

// IsSecretKey reports whether a map or attribute key names a secret.
func IsSecretKey(key string) bool {
	return secretKeyPattern.MatchString(key)
}

// DefaultPatterns returns compiled patterns for the key formats rolechat
// handles.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Google AI Studio
		regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),
		// OpenRouter
		regexp.MustCompile(`sk-or-v1-[0-9a-f]{32,}`),
		// OpenAI, including project keys
		regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9_\-]{20,}`),
		// Authorization headers echoed in errors
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/\-]{16,}=*`),
	}
}
