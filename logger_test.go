package mqttws

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "NONE", LogLevelNone.String())
}

func TestStdLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := NewStdLogger(&buf, LogLevelWarn)

	logger.Debug("debug message", nil)
	logger.Info("info message", nil)
	assert.Empty(t, buf.String())

	logger.Warn("warn message", nil)
	logger.Error("error message", nil)

	out := buf.String()
	assert.Contains(t, out, "[WARN] warn message")
	assert.Contains(t, out, "[ERROR] error message")
	assert.NotContains(t, out, "info message")
}

func TestStdLoggerFields(t *testing.T) {
	var buf bytes.Buffer

	logger := NewStdLogger(&buf, LogLevelDebug)
	logger.Info("client connected", LogFields{LogFieldClientID: "c1"})

	assert.Contains(t, buf.String(), "client_id:c1")
}

func TestStdLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer

	base := NewStdLogger(&buf, LogLevelDebug)
	scoped := base.WithFields(LogFields{LogFieldConnID: 7})

	scoped.Info("subscribed", LogFields{LogFieldTopic: "t"})

	out := buf.String()
	assert.Contains(t, out, "conn_id:7")
	assert.Contains(t, out, "topic:t")

	// The base logger stays unscoped.
	buf.Reset()
	base.Info("plain", nil)
	assert.NotContains(t, buf.String(), "conn_id")
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	logger.Debug("x", nil)
	logger.Error("x", nil)
	assert.Equal(t, logger, logger.WithFields(LogFields{"k": "v"}))
}
