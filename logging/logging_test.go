package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewDefaultsToJSONHandler(t *testing.T) {
	logger := New(Options{Level: slog.LevelInfo})
	if _, ok := logger.Handler().(*slog.JSONHandler); !ok {
		t.Fatalf("Handler() = %T, want *slog.JSONHandler for an empty Format", logger.Handler())
	}
}

func TestNewTextFormatUsesTextHandler(t *testing.T) {
	logger := New(Options{Format: "text", Level: slog.LevelInfo})
	if _, ok := logger.Handler().(*slog.TextHandler); !ok {
		t.Fatalf("Handler() = %T, want *slog.TextHandler for Format=text", logger.Handler())
	}
}

func TestNewRespectsConfiguredLevel(t *testing.T) {
	logger := New(Options{Level: slog.LevelWarn})
	if logger.Handler().Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("Info records should be disabled when Level is Warn")
	}
	if !logger.Handler().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("Error records should be enabled when Level is Warn")
	}
}

func TestComponentAddsAttribute(t *testing.T) {
	base := New(Options{Level: slog.LevelInfo})
	tagged := Component(base, "retrieval")
	if tagged == base {
		t.Fatal("Component should return a distinct logger, not the same instance")
	}
	// With() returns a logger that still satisfies the same Enabled gate.
	if !tagged.Handler().Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("tagged logger should remain enabled at Info")
	}
}
