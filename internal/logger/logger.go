package logger

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
)

// Fields carries structured context for a log line, e.g. template and child ids.
type Fields map[string]interface{}

// Logger is used by services and jobs. Extra args may be an error, Fields or
// any printable value.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// StdLogger writes "[level] msg key=value" lines to a standard logger.
type StdLogger struct {
	std   *log.Logger
	debug bool
}

var _ Logger = (*StdLogger)(nil)

func NewStd(std *log.Logger, debug bool) *StdLogger {
	return &StdLogger{std: std, debug: debug}
}

// Discard drops everything. Handy in tests.
func Discard() *StdLogger {
	return NewStd(log.New(io.Discard, "", 0), false)
}

func (l *StdLogger) Debug(msg string, args ...interface{}) {
	if l.debug {
		l.print("debug", msg, args)
	}
}

func (l *StdLogger) Info(msg string, args ...interface{}) {
	l.print("info", msg, args)
}

func (l *StdLogger) Warn(msg string, args ...interface{}) {
	l.print("warn", msg, args)
}

func (l *StdLogger) Error(msg string, args ...interface{}) {
	l.print("error", msg, args)
}

func (l *StdLogger) print(level, msg string, args []interface{}) {
	l.std.Println(Format(level, msg, args...))
}

// Format renders one log line.
func Format(level, msg string, args ...interface{}) string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(level)
	sb.WriteString("] ")
	sb.WriteString(msg)
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
			continue
		case Fields:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				sb.WriteString(fmt.Sprintf(" %s=%v", k, v[k]))
			}
		case error:
			sb.WriteString(fmt.Sprintf(" err=%q", v.Error()))
		default:
			sb.WriteString(fmt.Sprintf(" %+v", v))
		}
	}
	return sb.String()
}
