package app

import (
	"io"
	"log/slog"

	"github.com/flemzord/rolechat/internal/security"
)

// NewLogger builds the process logger: a text or JSON handler at the
// level held by level, wrapped so secrets known to redactor never reach w.
func NewLogger(w io.Writer, format string, level *slog.LevelVar, redactor *security.Redactor) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if format == "json" {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}
