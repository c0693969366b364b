package logger

import (
	"github.com/rollbar/rollbar-go"
)

// RollbarLogger reports warnings and errors to Rollbar and mirrors every
// line to the wrapped standard logger.
type RollbarLogger struct {
	std *StdLogger
}

var _ Logger = (*RollbarLogger)(nil)

func NewRollbar(std *StdLogger, token, env, codeVersion string) *RollbarLogger {
	rollbar.SetToken(token)
	rollbar.SetEnvironment(env)
	if codeVersion != "" {
		rollbar.SetCodeVersion(codeVersion)
	}
	return &RollbarLogger{std: std}
}

// Close flushes queued Rollbar items.
func (l *RollbarLogger) Close() {
	rollbar.Wait()
}

// rollbar only recognises plain maps as extras.
func (l *RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	out := make([]interface{}, 0, len(args)+1)
	out = append(out, msg)
	for _, arg := range args {
		if fields, ok := arg.(Fields); ok {
			out = append(out, map[string]interface{}(fields))
			continue
		}
		out = append(out, arg)
	}
	return out
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	l.std.Debug(msg, args...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	l.std.Info(msg, args...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.std.Warn(msg, args...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.std.Error(msg, args...)
}
