package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var defaultLogger *slog.Logger

// Initialize sets up the global logger with the specified level and format
func Initialize(level, format string) {
	InitializeWithWriter(os.Stdout, level, format)
}

// InitializeWithWriter sets up the global logger writing to w.
// Format "json" and "text" use the slog handlers, "console" uses tint.
func InitializeWithWriter(w io.Writer, level, format string) {
	logLevel := ParseLevel(level)

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	case "console":
		handler = tint.NewHandler(w, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the default logger
func Get() *slog.Logger {
	if defaultLogger == nil {
		// Initialize with default settings if not yet initialized
		Initialize("info", "text")
	}
	return defaultLogger
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

// InfoContext logs an info message with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	Get().InfoContext(ctx, msg, args...)
}

// Transition logs a settlement state change at info level.
func Transition(settlementID string, from, to string, args ...any) {
	Get().Info("Settlement transition", prepend(args, "settlement_id", settlementID, "from", from, "to", to)...)
}

// ReconciliationRequired logs a money discrepancy that needs a human.
func ReconciliationRequired(settlementID string, err error, args ...any) {
	Get().Error("Settlement requires manual reconciliation",
		prepend(args, "settlement_id", settlementID, "error", err, "alert", "reconciliation_required")...)
}

// EnterMethod and ExitMethod trace service and repository calls at debug.
func EnterMethod(methodName string, args ...any) {
	Get().Debug("→ Method entered", prepend(args, "method", methodName, "event", "enter")...)
}

func ExitMethod(methodName string, args ...any) {
	Get().Debug("← Method exited", prepend(args, "method", methodName, "event", "exit")...)
}

func ExitMethodWithError(methodName string, err error, args ...any) {
	Get().Error("← Method exited with error", prepend(args, "method", methodName, "event", "exit", "error", err)...)
}

func DatabaseCall(operation, query string, args ...any) {
	Get().Debug("→ Database call", prepend(args, "operation", operation, "query", query)...)
}

func DatabaseResult(operation string, rowsAffected int64, err error, args ...any) {
	result("Database call", err, prepend(args, "operation", operation, "rows_affected", rowsAffected))
}

// ExternalServiceCall logs a request to the gateway or a delivery channel.
func ExternalServiceCall(service, operation string, args ...any) {
	Get().Debug("→ External service call", prepend(args, "service", service, "operation", operation)...)
}

func ExternalServiceResult(service, operation string, err error, args ...any) {
	result("External service call", err, prepend(args, "service", service, "operation", operation))
}

// result logs failures at error and successes at debug.
func result(what string, err error, args []any) {
	if err != nil {
		Get().Error("← "+what+" failed", append(args, "error", err)...)
		return
	}
	Get().Debug("← "+what+" succeeded", args...)
}

func prepend(args []any, head ...any) []any {
	return append(head, args...)
}
