package observability

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// StdLogger adapts the standard library logger to the Logger interface.
type StdLogger struct {
	logger *log.Logger
	debug  bool
}

// NewStdLogger wraps the provided std logger. When logger is nil a default
// stdout logger with microsecond timestamps is created.
func NewStdLogger(logger *log.Logger, debug bool) *StdLogger {
	if logger == nil {
		logger = log.New(os.Stdout, "pulsebus ", log.LstdFlags|log.Lmicroseconds)
	}
	return &StdLogger{logger: logger, debug: debug}
}

// Debug logs at debug level when enabled.
func (l *StdLogger) Debug(msg string, fields ...Field) {
	if !l.debug {
		return
	}
	l.emit("DEBUG", msg, fields)
}

// Info logs at info level.
func (l *StdLogger) Info(msg string, fields ...Field) {
	l.emit("INFO", msg, fields)
}

// Warn logs at warning level.
func (l *StdLogger) Warn(msg string, fields ...Field) {
	l.emit("WARN", msg, fields)
}

// Error logs at error level.
func (l *StdLogger) Error(msg string, fields ...Field) {
	l.emit("ERROR", msg, fields)
}

func (l *StdLogger) emit(level, msg string, fields []Field) {
	if len(fields) == 0 {
		l.logger.Printf("%s %s", level, msg)
		return
	}
	pairs := make([]string, 0, len(fields))
	for _, f := range fields {
		pairs = append(pairs, fmt.Sprintf("%s=%v", f.Key, f.Value))
	}
	l.logger.Printf("%s %s %s", level, msg, strings.Join(pairs, " "))
}
