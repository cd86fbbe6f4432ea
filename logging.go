package rtm

import "sync/atomic"

// LogLevel describes the chosen log level.
type LogLevel int

const (
	// LogLevelNone means no logging.
	LogLevelNone LogLevel = iota
	// LogLevelTrace turns on trace-level logging.
	LogLevelTrace
	// LogLevelDebug turns on debug-level logging.
	LogLevelDebug
	// LogLevelInfo is logs useful server information.
	LogLevelInfo
	// LogLevelWarn is logs about things which require attention.
	LogLevelWarn
	// LogLevelError level logs only errors.
	LogLevelError
)

// levelToString matches LogLevel to its string representation.
var levelToString = map[LogLevel]string{
	LogLevelTrace: "trace",
	LogLevelDebug: "debug",
	LogLevelInfo:  "info",
	LogLevelWarn:  "warn",
	LogLevelError: "error",
	LogLevelNone:  "none",
}

// LogLevelToString transforms Level to its string representation.
func LogLevelToString(l LogLevel) string {
	if t, ok := levelToString[l]; ok {
		return t
	}
	return ""
}

// LogEntry represents log entry.
type LogEntry struct {
	Message string
	Fields  map[string]any
}

// newLogEntry creates new LogEntry.
func newLogEntry(message string, fields ...map[string]any) LogEntry {
	var f map[string]any
	if len(fields) > 0 {
		f = fields[0]
	}
	return LogEntry{
		Message: message,
		Fields:  f,
	}
}

// LogHandler handles log entries - i.e. writes into correct destination if necessary.
type LogHandler func(LogEntry)

func newLogger(level LogLevel, handler LogHandler) *logger {
	l := &logger{handler: handler}
	l.level.Store(int32(level))
	return l
}

// logger can log entries they they have level more than configured. The
// level is atomic so it can be adjusted at runtime while other
// goroutines log through the same logger.
type logger struct {
	level   atomic.Int32
	handler LogHandler
}

// setLevel changes the minimum level of entries passed to the handler.
func (l *logger) setLevel(level LogLevel) {
	if l == nil {
		return
	}
	l.level.Store(int32(level))
}

// log calls log handler with provided LogEntry.
func (l *logger) log(level LogLevel, message string, fields ...map[string]any) {
	if l == nil {
		return
	}
	if l.enabled(level) {
		l.handler(newLogEntry(message, fields...))
	}
}

// enabled returns whether log entries with provided Level enabled.
func (l *logger) enabled(level LogLevel) bool {
	if l == nil {
		return false
	}
	current := LogLevel(l.level.Load())
	return level >= current && current != LogLevelNone
}
