package internal

import (
	"context"
	"log/slog"
)

// LogAttrs logs to l if non-nil. Nil loggers disable logging entirely.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

// LogEnabled reports whether l would emit records at level.
func LogEnabled(l *slog.Logger, level slog.Level) bool {
	return l != nil && l.Enabled(context.Background(), level)
}
