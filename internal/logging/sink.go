package logging

import "log/slog"

// Level classifies a sink message. "success" is distinct from "info" so
// surfaces can render step completions differently from progress chatter.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Sink receives human-readable progress messages from the engine at step
// start/end, action start/end, retries, condition evaluations, and run
// completion. It is injected and carries no engine state.
type Sink func(level Level, message string)

// NopSink discards all messages.
func NopSink(Level, string) {}

// SlogSink adapts a structured logger into a Sink. "success" maps to Info
// with a success marker attribute.
func SlogSink(logger *slog.Logger) Sink {
	return func(level Level, message string) {
		switch level {
		case LevelError:
			logger.Error(message)
		case LevelWarning:
			logger.Warn(message)
		case LevelSuccess:
			logger.Info(message, slog.Bool("success", true))
		default:
			logger.Info(message)
		}
	}
}

// Tee fans a message out to multiple sinks.
func Tee(sinks ...Sink) Sink {
	return func(level Level, message string) {
		for _, s := range sinks {
			if s != nil {
				s(level, message)
			}
		}
	}
}
