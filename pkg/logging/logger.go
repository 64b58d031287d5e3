// Package logging provides structured logging for nvrec with consistent field names.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with record-engine helpers.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to w. format is "text" or "json".
func New(w io.Writer, level slog.Level, format string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that outputs human-readable text logs to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return New(os.Stderr, level, "text")
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return New(os.Stderr, level, "json")
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))}
}

// ParseLevel converts a config level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// WithSlot adds a slot field to the logger.
func (l *Logger) WithSlot(slot int) *Logger {
	return &Logger{Logger: l.Logger.With("slot", slot)}
}

// WithDevice adds a device field to the logger.
func (l *Logger) WithDevice(name string) *Logger {
	return &Logger{Logger: l.Logger.With("device", name)}
}

// LogRead logs a record read.
func (l *Logger) LogRead(ctx context.Context, slot int, edition uint32, format uint16, err error) {
	if err != nil {
		l.ErrorContext(ctx, "record read failed",
			"slot", slot,
			"edition", edition,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "record read",
		"slot", slot,
		"edition", edition,
		"format", format,
	)
}

// LogCorruption logs a checksum mismatch.
func (l *Logger) LogCorruption(ctx context.Context, slot int, edition, stored, computed uint32) {
	l.WarnContext(ctx, "record checksum mismatch",
		"slot", slot,
		"edition", edition,
		"stored_crc", fmt.Sprintf("%08x", stored),
		"computed_crc", fmt.Sprintf("%08x", computed),
	)
}

// LogWrite logs a record write.
func (l *Logger) LogWrite(ctx context.Context, slot int, edition uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "record write failed",
			"slot", slot,
			"edition", edition,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "record written",
		"slot", slot,
		"edition", edition,
	)
}

// LogElided logs a write skipped because the record was clean.
func (l *Logger) LogElided(ctx context.Context, edition uint32) {
	l.DebugContext(ctx, "write elided, record clean", "edition", edition)
}

// LogRollBack logs the invalidation of the newest edition.
func (l *Logger) LogRollBack(ctx context.Context, slot int, edition uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "roll back failed",
			"slot", slot,
			"edition", edition,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "edition rolled back",
		"slot", slot,
		"edition", edition,
	)
}

// LogDestroy logs a factory reset.
func (l *Logger) LogDestroy(ctx context.Context, slots, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "destroy completed with failures",
			"slots", slots,
			"failed", failed,
		)
		return
	}
	l.InfoContext(ctx, "record destroyed", "slots", slots)
}

// LogMisconfigured logs a geometry that cannot hold the record.
func (l *Logger) LogMisconfigured(ctx context.Context, op string, err error) {
	l.ErrorContext(ctx, "record does not fit slot geometry",
		"operation", op,
		"error", err,
	)
}
