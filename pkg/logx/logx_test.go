package logx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestLogger routes log output into a buffer for the duration of the test.
func setupTestLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logWriterLock.Lock()
	logWriter = &buf
	logWriterLock.Unlock()
	t.Cleanup(func() {
		logWriterLock.Lock()
		logWriter = nil
		logWriterLock.Unlock()
		SetDebug(false)
	})
	return &buf
}

func TestLogFormat(t *testing.T) {
	buf := setupTestLogger(t)

	NewLogger("retriever").Info("found %d fragments", 3)

	out := buf.String()
	assert.Contains(t, out, "[retriever]")
	assert.Contains(t, out, "INFO: found 3 fragments")
	assert.True(t, strings.HasPrefix(out, "["))
	assert.Contains(t, out, "Z]")
}

func TestLogLevels(t *testing.T) {
	logger := NewLogger("agent")

	tests := []struct {
		level   Level
		logFunc func(string, ...any)
	}{
		{LevelDebug, logger.Debug},
		{LevelInfo, logger.Info},
		{LevelWarn, logger.Warn},
		{LevelError, logger.Error},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := setupTestLogger(t)
			SetDebug(true)

			tt.logFunc("message")
			assert.Contains(t, buf.String(), string(tt.level))
		})
	}
}

func TestDebugDisabledByDefault(t *testing.T) {
	buf := setupTestLogger(t)
	SetDebug(false)

	NewLogger("agent").Debug("hidden")
	Debug(context.Background(), "agent", "hidden too")

	assert.Empty(t, buf.String())
}

func TestDebugDomainFiltering(t *testing.T) {
	buf := setupTestLogger(t)
	SetDebug(true, "retrieval")

	ctx := WithRequestID(context.Background(), "req-42")
	Debug(ctx, "retrieval", "lock target %s", "README.md")
	Debug(ctx, "planner", "should not appear")

	out := buf.String()
	assert.Contains(t, out, "[req-42]")
	assert.Contains(t, out, "[retrieval] lock target README.md")
	assert.NotContains(t, out, "should not appear")
	assert.True(t, IsDebugEnabledForDomain("retrieval"))
	assert.False(t, IsDebugEnabledForDomain("planner"))
}

func TestRequestID(t *testing.T) {
	assert.Equal(t, "", RequestID(context.Background()))
	assert.Equal(t, "abc", RequestID(WithRequestID(context.Background(), "abc")))
}

func TestLogBufferFiltering(t *testing.T) {
	buffer := &InMemoryLogBuffer{maxSize: 2}
	now := time.Now().UTC()

	buffer.AddLogEntry(&LogEntry{Timestamp: now.Add(-time.Hour).Format(TimestampFormat), Domain: "agent", Message: "old"})
	buffer.AddLogEntry(&LogEntry{Timestamp: now.Format(TimestampFormat), Domain: "agent", Message: "new"})
	buffer.AddLogEntry(&LogEntry{Timestamp: now.Format(TimestampFormat), Domain: "tools", Message: "newest"})

	all := buffer.GetLogEntries("", time.Time{})
	require.Len(t, all, 2, "buffer must evict past maxSize")
	assert.Equal(t, "new", all[0].Message)

	agentOnly := buffer.GetLogEntries("agent", time.Time{})
	require.Len(t, agentOnly, 1)
	assert.Equal(t, "new", agentOnly[0].Message)

	recent := buffer.GetLogEntries("", now.Add(time.Minute))
	assert.Empty(t, recent)
}

func TestWrap(t *testing.T) {
	buf := setupTestLogger(t)

	assert.NoError(t, Wrap(nil, "noop"))

	base := errors.New("connection refused")
	err := Wrap(base, "query index")
	require.Error(t, err)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "query index: connection refused", err.Error())
	assert.Contains(t, buf.String(), "ERROR: query index: connection refused")
}
