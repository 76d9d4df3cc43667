// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/rolechat/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// MockEvictor is a test double for cron.Evictor.
type MockEvictor struct {
	EvictFunc func(maxIdle time.Duration) int
	Calls     atomic.Int32
}

// EvictIdle implements cron.Evictor.
func (m *MockEvictor) EvictIdle(maxIdle time.Duration) int {
	m.Calls.Add(1)
	if m.EvictFunc != nil {
		return m.EvictFunc(maxIdle)
	}
	return 0
}

// MockRefresher is a test double for cron.ModelRefresher.
type MockRefresher struct {
	Err   error
	Calls atomic.Int32
}

// RefreshModels implements cron.ModelRefresher.
func (m *MockRefresher) RefreshModels(ctx context.Context) error {
	m.Calls.Add(1)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return m.Err
}

// Interface guards.
var (
	_ cron.Evictor        = (*MockEvictor)(nil)
	_ cron.ModelRefresher = (*MockRefresher)(nil)
)

// MockSweeper is a test double for cron.Sweeper.
type MockSweeper struct {
	Swept int
	Calls atomic.Int32
}

// Compile-time interface check.
var _ cron.Sweeper = (*MockSweeper)(nil)

// Sweep implements cron.Sweeper.
func (m *MockSweeper) Sweep() int {
	m.Calls.Add(1)
	return m.Swept
}
