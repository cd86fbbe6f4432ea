package rtm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogLevelToString(t *testing.T) {
	require.Equal(t, "debug", LogLevelToString(LogLevelDebug))
	require.Equal(t, "info", LogLevelToString(LogLevelInfo))
	require.Equal(t, "error", LogLevelToString(LogLevelError))
	require.Equal(t, "none", LogLevelToString(LogLevelNone))
	require.Equal(t, "", LogLevelToString(LogLevel(42)))
}

func TestLoggerLevelFiltering(t *testing.T) {
	var entries []LogEntry
	l := newLogger(LogLevelInfo, func(e LogEntry) {
		entries = append(entries, e)
	})
	require.False(t, l.enabled(LogLevelDebug))
	require.True(t, l.enabled(LogLevelError))

	l.log(LogLevelDebug, "dropped")
	l.log(LogLevelInfo, "kept", map[string]any{"k": "v"})
	require.Len(t, entries, 1)
	require.Equal(t, "kept", entries[0].Message)
	require.Equal(t, "v", entries[0].Fields["k"])
}

func TestLoggerSetLevel(t *testing.T) {
	var entries []LogEntry
	l := newLogger(LogLevelError, func(e LogEntry) {
		entries = append(entries, e)
	})
	l.log(LogLevelInfo, "dropped")
	require.Empty(t, entries)

	l.setLevel(LogLevelInfo)
	l.log(LogLevelInfo, "kept")
	require.Len(t, entries, 1)

	l.setLevel(LogLevelNone)
	require.False(t, l.enabled(LogLevelError))
}

func TestNilLoggerSafe(t *testing.T) {
	var l *logger
	require.False(t, l.enabled(LogLevelError))
	l.log(LogLevelError, "ignored")
	l.setLevel(LogLevelDebug)
}
