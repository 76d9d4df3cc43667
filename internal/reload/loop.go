package reload

import (
	"context"
	"log/slog"
	"os"
)

// Loop applies reloads requested by the watcher or by signals until ctx is
// done. Each value on signals triggers one reload of path. Failures are
// logged and the previous configuration stays active.
func Loop(ctx context.Context, h *Handler, w *Watcher, signals <-chan os.Signal, path string) {
	var events <-chan Event
	if w != nil {
		events = w.Events()
	}
	for {
		var ev Event
		select {
		case <-ctx.Done():
			return
		case <-signals:
			ev = Event{Source: SourceSignal, ConfigPath: path}
		case ev = <-events:
		}
		h.opts.Logger.Info("reloading configuration", slog.String("source", string(ev.Source)), slog.String("path", ev.ConfigPath))
		if err := h.HandleReload(ctx, ev.ConfigPath); err != nil {
			h.opts.Logger.Error("reload failed, keeping previous configuration", "error", err)
		}
	}
}
