// Package logging wires the process-wide structured logger. All
// packages take a *slog.Logger explicitly rather than reaching for a
// global, but New here is the one place the handler is chosen.
package logging

import (
	"log/slog"
	"os"
)

// Options configures the root logger.
type Options struct {
	Format string // "json" or "text"
	Level  slog.Level
}

// New builds a *slog.Logger per Options. An empty Format defaults to
// "json", matching the teacher's production handler choice; "text" is
// used for local/dev runs where a human reads the terminal directly.
func New(opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var handler slog.Handler
	if opts.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	}
	return slog.New(handler)
}

// Component returns a logger tagged with a "component" attribute,
// matching the key-value style used throughout the search/context
// packages this runtime borrows its logging idiom from.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}
