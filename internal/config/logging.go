package config

import (
	"io"
	"log/slog"
)

// NewLogger returns a JSON logger in production and a text logger otherwise.
func (c App) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if c.Production() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	opts.Level = slog.LevelDebug
	return slog.New(slog.NewTextHandler(w, opts))
}
