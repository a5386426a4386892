// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package logger provides a context-carried slog.Logger used throughout
// the engine, its companion adapters, and the CLI.
package logger

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// logger is the context key under which the *slog.Logger is stored.
// It is unexported so only this package can set or retrieve it directly.
type logger struct{}

// NewLogger creates a new *slog.Logger. If handlers are provided, the first
// one is used; otherwise a handler is derived from the LOG_FORMAT/LOG_LEVEL
// environment variables.
func NewLogger(handlers ...slog.Handler) *slog.Logger {
	if len(handlers) > 0 {
		return slog.New(handlers[0])
	}
	return slog.New(newHandler())
}

// IntoContext returns a new context carrying the given logger.
func IntoContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, logger{}, log)
}

// NewContextWithLogger derives a cancellable child context from parent and
// ensures it carries a logger, reusing the parent's logger if one is already
// present.
func NewContextWithLogger(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if _, ok := ctx.Value(logger{}).(*slog.Logger); ok {
		return ctx, cancel
	}
	return IntoContext(ctx, NewLogger()), cancel
}

// FromContext returns the logger stored in ctx, or a freshly constructed
// default logger if ctx is nil or carries none.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return NewLogger()
	}
	if log, ok := ctx.Value(logger{}).(*slog.Logger); ok {
		return log
	}
	return NewLogger()
}

// Middleware returns an HTTP middleware that injects the logger carried by
// parent (or a default one) into every request context.
func Middleware(parent context.Context) func(http.Handler) http.Handler {
	log := FromContext(parent)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(IntoContext(r.Context(), log)))
		})
	}
}

// newHandler builds a slog.Handler from the LOG_FORMAT and LOG_LEVEL
// environment variables. LOG_FORMAT of "TEXT" selects a text handler;
// anything else (including unset) selects JSON.
func newHandler() slog.Handler {
	opts := &slog.HandlerOptions{Level: getLevel(os.Getenv("LOG_LEVEL"))}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "TEXT") {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

// getLevel maps a textual log level to a slog.Level, defaulting to Info for
// an empty or unrecognized value.
func getLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
