package provider

import (
	"sync"
	"time"
)

// HealthState is the provider availability derived from recent turns.
type HealthState int

// Health states. A failing provider has reached MaxFailures consecutive
// failed turns; it stays failing until a turn succeeds.
const (
	StateHealthy HealthState = iota
	StateCooldown
	StateFailing
)

// String returns a human-readable label for the health state.
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateCooldown:
		return "cooldown"
	case StateFailing:
		return "failing"
	default:
		return "unknown"
	}
}

// HealthConfig controls health tracking behavior.
type HealthConfig struct {
	// InitialBackoff is the cooldown after the first failure. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff. Default: 60s.
	MaxBackoff time.Duration

	// MaxFailures is the number of consecutive failures before the
	// provider is reported failing. Default: 5.
	MaxFailures int
}

func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
}

// HealthSnapshot is a point-in-time view of a Health tracker.
type HealthSnapshot struct {
	State    HealthState
	Failures int

	// RetryAfter is the remaining cooldown; zero when none applies.
	RetryAfter time.Duration
}

// Health tracks consecutive turn failures against the configured provider.
// Failures move it into cooldown with exponential backoff; MaxFailures in a
// row mark it failing. It never blocks requests: callers only report it.
type Health struct {
	cfg HealthConfig

	// OnStateChange is called outside the lock on every transition.
	OnStateChange func(from, to HealthState)

	mu              sync.Mutex
	state           HealthState
	failures        int
	currentBackoff  time.Duration
	cooldownExpires time.Time

	now func() time.Time
}

// NewHealth creates a healthy tracker.
func NewHealth(cfg HealthConfig, now func() time.Time) *Health {
	cfg.defaults()
	if now == nil {
		now = time.Now
	}
	return &Health{cfg: cfg, state: StateHealthy, now: now}
}

// RecordSuccess resets the tracker to healthy.
func (h *Health) RecordSuccess() {
	h.mu.Lock()
	prev := h.state
	h.state = StateHealthy
	h.failures = 0
	h.currentBackoff = 0
	h.mu.Unlock()

	h.notify(prev, StateHealthy)
}

// RecordFailure counts a failed turn.
func (h *Health) RecordFailure() {
	h.mu.Lock()
	prev := h.state
	h.failures++

	next := StateCooldown
	if h.failures >= h.cfg.MaxFailures {
		next = StateFailing
	}
	if h.currentBackoff == 0 {
		h.currentBackoff = h.cfg.InitialBackoff
	} else {
		h.currentBackoff *= 2
	}
	if h.currentBackoff > h.cfg.MaxBackoff {
		h.currentBackoff = h.cfg.MaxBackoff
	}
	h.cooldownExpires = h.now().Add(h.currentBackoff)
	h.state = next
	h.mu.Unlock()

	h.notify(prev, next)
}

// Reset returns to healthy without reporting a transition. Used when the
// provider configuration is replaced.
func (h *Health) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateHealthy
	h.failures = 0
	h.currentBackoff = 0
	h.cooldownExpires = time.Time{}
}

// Snapshot returns the current state. A cooldown whose backoff has expired
// reads as healthy while keeping its failure count.
func (h *Health) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := HealthSnapshot{State: h.state, Failures: h.failures}
	if h.state == StateHealthy {
		return snap
	}
	if remaining := h.cooldownExpires.Sub(h.now()); remaining > 0 {
		snap.RetryAfter = remaining
	} else if h.state == StateCooldown {
		snap.State = StateHealthy
	}
	return snap
}

func (h *Health) notify(from, to HealthState) {
	if from != to && h.OnStateChange != nil {
		h.OnStateChange(from, to)
	}
}
