// Package logging sets up structured logging for nuxlab.
//
// Diagnostic logs go through log/slog on stderr. Anything meant for the
// person at the terminal is printed by the commands themselves on stdout.
package logging

import (
	"io"
	"log/slog"
)

// Setup builds a logger writing to w and installs it as the slog default.
// verbose lowers the level to debug; json switches to the JSON handler.
func Setup(verbose, json bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything. The Ansible module uses it
// because stdout carries the JSON result.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
