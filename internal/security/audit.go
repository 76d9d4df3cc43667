package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types.
const (
	EventAuthFailure    EventType = "auth_failure"
	EventProviderChange EventType = "provider_change"
	EventHistoryRewrite EventType = "history_rewrite"
	EventMemoryDelete   EventType = "memory_delete"
	EventRateLimit      EventType = "rate_limit"
	EventConfigReload   EventType = "config_reload"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Remote    string            `json:"remote,omitempty"`
	Character string            `json:"character,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer receives JSONL output. Nil only dispatches to OnEvent.
	Writer io.Writer

	// Redactor is applied to Detail and Metadata values.
	Redactor *Redactor

	// OnEvent is called for every event.
	OnEvent func(AuditEvent)

	Now func() time.Time
}

// AuditLogger writes audit events as JSONL.
type AuditLogger struct {
	mu       sync.Mutex
	enc      *json.Encoder
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	l := &AuditLogger{
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      cfg.Now,
	}
	if l.now == nil {
		l.now = time.Now
	}
	if cfg.Writer != nil {
		l.enc = json.NewEncoder(cfg.Writer)
	}
	return l
}

// Log stamps and records event. The caller's Metadata map is not mutated.
// A nil logger discards the event.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.now()
	event.Metadata = maps.Clone(event.Metadata)

	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.enc != nil {
		_ = l.enc.Encode(event)
	}
}
