// Package logging configures the structured logger the executor and
// collection log command boundaries and recovery events through. One
// constructor returns a ready-to-use *slog.Logger with a level knob,
// the way LeeNgari-RDBMS/internal/logging wires slog for its engine.
package logging

import (
	"log/slog"
	"os"
)

// New returns a text-handler logger writing to stderr at the given
// level, with source locations attached.
func New(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	return slog.New(handler)
}

// Default is the logger every collection and executor falls back to
// when none is supplied explicitly.
var Default = New(slog.LevelInfo)
