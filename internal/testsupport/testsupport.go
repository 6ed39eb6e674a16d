// Package testsupport provides shared test infrastructure used across
// package test files.
package testsupport

import (
	"log/slog"
	"os"
)

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
