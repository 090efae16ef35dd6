package logging

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// LogrusLogger implements the Logger interface on top of logrus
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a logger from the given configuration
func NewLogger(config LogConfig) (*LogrusLogger, error) {
	base := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch config.Format {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.SetFormatter(&logrus.JSONFormatter{})
	}

	switch config.Output {
	case "stderr":
		base.SetOutput(os.Stderr)
	case "file":
		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		base.SetOutput(file)
	default:
		base.SetOutput(os.Stdout)
	}

	base.SetReportCaller(config.IncludeCaller)

	return &LogrusLogger{entry: logrus.NewEntry(base)}, nil
}

// Debug logs a debug message
func (l *LogrusLogger) Debug(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Debug(msg)
}

// Info logs an info message
func (l *LogrusLogger) Info(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Info(msg)
}

// Warn logs a warning message
func (l *LogrusLogger) Warn(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Warn(msg)
}

// Error logs an error message
func (l *LogrusLogger) Error(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Error(msg)
}

// WithFields returns a new logger with the given fields
func (l *LogrusLogger) WithFields(fields ...Field) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(toLogrusFields(fields))}
}

// WithContext returns a new logger with the given context
func (l *LogrusLogger) WithContext(ctx context.Context) Logger {
	return &LogrusLogger{entry: l.entry.WithContext(ctx)}
}

// LogSyncEvent records workflow synchronization events
func (l *LogrusLogger) LogSyncEvent(integrationID string, event string, data map[string]interface{}) {
	l.entry.WithFields(logrus.Fields{
		"integration_id": integrationID,
		"event":          event,
		"data":           data,
	}).Info("sync event")
}

// LogExecutionEvent records workflow execution events
func (l *LogrusLogger) LogExecutionEvent(workflowID string, executionID string, event string, data map[string]interface{}) {
	l.entry.WithFields(logrus.Fields{
		"workflow_id":  workflowID,
		"execution_id": executionID,
		"event":        event,
		"data":         data,
	}).Info("execution event")
}

// LogSystemEvent records system-level events
func (l *LogrusLogger) LogSystemEvent(event string, data map[string]interface{}) {
	l.entry.WithFields(logrus.Fields{
		"event": event,
		"data":  data,
	}).Info("system event")
}

func toLogrusFields(fields []Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, field := range fields {
		out[field.Key] = field.Value
	}
	return out
}

// NopLogger discards all log output. Useful in tests.
type NopLogger struct{}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *NopLogger { return &NopLogger{} }

func (n *NopLogger) Debug(msg string, fields ...Field) {}
func (n *NopLogger) Info(msg string, fields ...Field)  {}
func (n *NopLogger) Warn(msg string, fields ...Field)  {}
func (n *NopLogger) Error(msg string, fields ...Field) {}

func (n *NopLogger) WithFields(fields ...Field) Logger      { return n }
func (n *NopLogger) WithContext(ctx context.Context) Logger { return n }

func (n *NopLogger) LogSyncEvent(integrationID string, event string, data map[string]interface{}) {}
func (n *NopLogger) LogExecutionEvent(workflowID string, executionID string, event string, data map[string]interface{}) {
}
func (n *NopLogger) LogSystemEvent(event string, data map[string]interface{}) {}
