package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client exceeds its allowance.
var ErrRateLimited = errors.New("security: rate limit exceeded")

// Rate limited operations.
const (
	KindTurn  = "turn"
	KindImage = "image"
)

// RateLimitConfig holds per-client limits. Zero selects the default and a
// negative value disables the limit.
type RateLimitConfig struct {
	TurnsPerMin  int `yaml:"turns_per_min"`
	ImagesPerMin int `yaml:"images_per_min"`
}

const (
	defaultTurnsPerMin  = 30
	defaultImagesPerMin = 5
)

// RateLimiter is a sliding-window limiter keyed by client and kind.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]int
	window  time.Duration
	buckets map[bucketKey][]time.Time
	now     func() time.Time
}

type bucketKey struct {
	client string
	kind   string
}

// NewRateLimiter creates a rate limiter from cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limits: map[string]int{
			KindTurn:  limitOrDefault(cfg.TurnsPerMin, defaultTurnsPerMin),
			KindImage: limitOrDefault(cfg.ImagesPerMin, defaultImagesPerMin),
		},
		window:  time.Minute,
		buckets: make(map[bucketKey][]time.Time),
		now:     time.Now,
	}
}

func limitOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Allow records one event of kind for client, or returns ErrRateLimited.
// Unknown kinds and disabled limits always pass.
func (rl *RateLimiter) Allow(client, kind string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, ok := rl.limits[kind]
	if !ok || limit < 0 {
		return nil
	}

	now := rl.now()
	key := bucketKey{client: client, kind: kind}
	events := evict(rl.buckets[key], now.Add(-rl.window))
	if len(events) >= limit {
		rl.buckets[key] = events
		return ErrRateLimited
	}
	rl.buckets[key] = append(events, now)
	return nil
}

// Sweep drops buckets with no event inside the window and returns how many
// were removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	removed := 0
	for key, events := range rl.buckets {
		if len(evict(events, cutoff)) == 0 {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// evict removes events before cutoff. Events are chronologically ordered.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
