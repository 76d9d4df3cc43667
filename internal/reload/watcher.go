// Package reload applies configuration changes to a running server. Changes
// are detected by polling the config file or requested with SIGHUP.
package reload

import (
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// Source says what triggered a reload.
type Source string

// Reload sources.
const (
	SourceFile   Source = "file"
	SourceSignal Source = "signal"
)

// Event requests a reload of ConfigPath.
type Event struct {
	Source     Source
	ConfigPath string
}

// Watcher polls a configuration file and emits an Event when its content
// changes. Rewriting identical bytes does not trigger a reload.
type Watcher struct {
	path     string
	interval time.Duration
	events   chan Event

	startOnce sync.Once
	polling   bool // set inside startOnce
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewWatcher creates a watcher for path. A zero interval selects five
// seconds.
func NewWatcher(path string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Watcher{
		path:     path,
		interval: interval,
		events:   make(chan Event, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling. Only the first call has an effect.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.polling = true
		go w.poll(ctx)
	})
}

// Events returns the change notifications. Pending changes coalesce into
// one event.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop ends polling and waits for the goroutine. Safe before Start and
// safe to repeat.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	// A Start after Stop must not begin polling.
	w.startOnce.Do(func() {})
	if w.polling {
		<-w.done
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	last, _ := w.digest()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			sum, ok := w.digest()
			if !ok || sum == last {
				continue
			}
			last = sum
			select {
			case w.events <- Event{Source: SourceFile, ConfigPath: w.path}:
			default:
			}
		}
	}
}

// digest hashes the file. A missing or unreadable file reports false so a
// half-written save is retried on the next tick.
func (w *Watcher) digest() ([sha256.Size]byte, bool) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(data), true
}
