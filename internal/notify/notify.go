package notify

import (
	"context"
	"log/slog"
)

// Severity classifies a user-facing notification
type Severity int

const (
	Info Severity = iota
	Success
	Error
)

func (s Severity) String() string {
	switch s {
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notifier shows a transient message to the user
type Notifier interface {
	Notify(message string, severity Severity)
}

// Func adapts a plain function to Notifier
type Func func(message string, severity Severity)

func (f Func) Notify(message string, severity Severity) {
	f(message, severity)
}

// Log records notifications in the structured log
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(message string, severity Severity) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if severity == Error {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "notification", "message", message, "severity", severity.String())
}

// Multi fans a notification out to several notifiers
type Multi []Notifier

func (m Multi) Notify(message string, severity Severity) {
	for _, n := range m {
		if n != nil {
			n.Notify(message, severity)
		}
	}
}

// Discard drops every notification
var Discard Notifier = Func(func(string, Severity) {})
