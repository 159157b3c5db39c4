package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger() (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := NewLogger()
	logger.SetOutput(buf)
	logger.SetLevel(logrus.DebugLevel)
	return logger, buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_LogError(t *testing.T) {
	logger, buf := newBufferedLogger()

	err := NewProviderError("p1", "send", errors.New("boom"))
	logger.LogError(err, "send failed", logrus.Fields{"chat_id": "123@c.us"})

	entry := decodeEntry(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "send failed", entry["msg"])
	assert.Equal(t, "PROVIDER_ERROR", entry["error_code"])
	assert.Equal(t, "p1", entry["profile_id"])
	assert.Equal(t, "send", entry["operation"])
	assert.Equal(t, "123@c.us", entry["chat_id"])
}

func TestLogger_LogRetryableError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level string
	}{
		{"retryable logs warn", NewQueryTimeoutError("p1", "contacts", 0), "warning"},
		{"non retryable logs error", NewNotAuthenticatedError("p1"), "error"},
		{"plain error logs error", errors.New("plain"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferedLogger()
			logger.LogRetryableError(tt.err, "operation failed")
			assert.Equal(t, tt.level, decodeEntry(t, buf)["level"])
		})
	}
}

func TestWrapLogger(t *testing.T) {
	base := logrus.New()
	assert.Same(t, base, WrapLogger(base).Logger)
	assert.NotNil(t, WrapLogger(nil).Logger)
}

func TestLogger_WithError(t *testing.T) {
	logger, buf := newBufferedLogger()

	logger.WithError(NewPairingTimeoutError("p9", 5, 0)).Info("giving up")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "PAIRING_TIMEOUT", entry["error_code"])
	assert.Equal(t, true, entry["retryable"])
	assert.Equal(t, "p9", entry["profile_id"])
}
