package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_SessionKey(t *testing.T) {
	p := &Profile{ID: 42}
	assert.Equal(t, "42", p.SessionKey())
}

func TestFormatRelayTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 3, 5, 14, 7, 9, 123_456_789, loc)

	assert.Equal(t, "2024-03-05T12:07:09.123Z", FormatRelayTimestamp(ts))
}

func TestRelayEnvelope_JSONFields(t *testing.T) {
	env := RelayEnvelope{
		ProfileID: "7",
		From:      "15551234567@c.us",
		To:        "15557654321@c.us",
		Message:   "hi",
		Timestamp: "2024-03-05T12:07:09.000Z",
	}

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, map[string]string{
		"profileId": "7",
		"from":      "15551234567@c.us",
		"to":        "15557654321@c.us",
		"message":   "hi",
		"timestamp": "2024-03-05T12:07:09.000Z",
	}, decoded)
}

func TestSessionConfig_Durations(t *testing.T) {
	cfg := SessionConfig{
		InitTimeoutMs:          5000,
		PairingPollIntervalMs:  1000,
		QueryTimeoutMs:         10000,
		QRRequestTimeoutMs:     15000,
		HealthCheckIntervalSec: 30,
	}

	assert.Equal(t, 5*time.Second, cfg.InitTimeout())
	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.Equal(t, 10*time.Second, cfg.QueryTimeout())
	assert.Equal(t, 15*time.Second, cfg.QRRequestTimeout())
	assert.Equal(t, 30*time.Second, cfg.HealthCheckInterval())
}

func TestConfigError_Error(t *testing.T) {
	err := ConfigError{Message: "test error"}
	assert.Equal(t, "test error", err.Error())
}
