// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithLead returns a logger scoped to a lead's external row ID.
func (l *Logger) WithLead(externalID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("lead_id", externalID)),
	}
}

// SyncCycle logs the outcome of one reconciliation cycle.
func (l *Logger) SyncCycle(rows, created, changed, sent int, durationMs float64) {
	l.Info("sync_cycle",
		slog.Int("rows", rows),
		slog.Int("leads_created", created),
		slog.Int("leads_changed", changed),
		slog.Int("reminders_sent", sent),
		slog.Float64("duration_ms", durationMs),
	)
}

// SourceError logs an external source failure.
func (l *Logger) SourceError(operation string, attempts int, err error) {
	l.Error("source_error",
		slog.String("operation", operation),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
}

// RowRejected logs a row that failed boundary validation and was skipped.
func (l *Logger) RowRejected(rowID string, err error) {
	l.Warn("row_rejected",
		slog.String("row_id", rowID),
		slog.String("error", err.Error()),
	)
}

// DeliveryError logs a failed reminder delivery attempt.
func (l *Logger) DeliveryError(taskID, leadID, kind string, attempt int, err error) {
	l.Warn("delivery_error",
		slog.String("task_id", taskID),
		slog.String("lead_id", leadID),
		slog.String("kind", kind),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

// DeliveryExhausted logs a reminder whose delivery retries are spent.
// The task stays unsent and visible; it is never dropped silently.
func (l *Logger) DeliveryExhausted(taskID, leadID, kind string, attempts int) {
	l.Error("delivery_exhausted",
		slog.String("task_id", taskID),
		slog.String("lead_id", leadID),
		slog.String("kind", kind),
		slog.Int("attempts", attempts),
	)
}

// InvariantViolation logs a consistency breach that was rejected.
func (l *Logger) InvariantViolation(subject, detail string) {
	l.Error("invariant_violation",
		slog.String("subject", subject),
		slog.String("detail", detail),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}
