package models

import "time"

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Database DatabaseConfig `json:"database"`
	Session  SessionConfig  `json:"session"`
	Auth     AuthConfig     `json:"auth"`
	Webhook  WebhookConfig  `json:"webhook"`
	Retry    RetryConfig    `json:"retry"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port               string `json:"port"`
	ReadTimeoutSec     int    `json:"read_timeout_sec"`
	WriteTimeoutSec    int    `json:"write_timeout_sec"`
	IdleTimeoutSec     int    `json:"idle_timeout_sec"`
	ShutdownTimeoutSec int    `json:"shutdown_timeout_sec"`
}

// WhatsAppConfig holds the WAHA connection settings
type WhatsAppConfig struct {
	APIBaseURL       string `json:"api_base_url"`
	APIKey           string `json:"api_key"`
	WebhookSecret    string `json:"webhook_secret"`
	PublicWebhookURL string `json:"public_webhook_url"`
	SessionPrefix    string `json:"session_prefix"`
	TimeoutMs        int    `json:"timeout_ms"`
	EventTransport   string `json:"event_transport"`
	QRRefreshSec     int    `json:"qr_refresh_sec"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// SessionConfig bounds every wait performed by the session manager.
type SessionConfig struct {
	InitTimeoutMs          int  `json:"init_timeout_ms"`
	PairingPollIntervalMs  int  `json:"pairing_poll_interval_ms"`
	PairingPollAttempts    int  `json:"pairing_poll_attempts"`
	QueryTimeoutMs         int  `json:"query_timeout_ms"`
	QRRequestTimeoutMs     int  `json:"qr_request_timeout_ms"`
	HealthCheckIntervalSec int  `json:"health_check_interval_sec"`
	EventBuffer            int  `json:"event_buffer"`
	RestoreOnStartup       bool `json:"restore_on_startup"`
}

func (s SessionConfig) InitTimeout() time.Duration {
	return time.Duration(s.InitTimeoutMs) * time.Millisecond
}

func (s SessionConfig) PollInterval() time.Duration {
	return time.Duration(s.PairingPollIntervalMs) * time.Millisecond
}

func (s SessionConfig) QueryTimeout() time.Duration {
	return time.Duration(s.QueryTimeoutMs) * time.Millisecond
}

func (s SessionConfig) QRRequestTimeout() time.Duration {
	return time.Duration(s.QRRequestTimeoutMs) * time.Millisecond
}

func (s SessionConfig) HealthCheckInterval() time.Duration {
	return time.Duration(s.HealthCheckIntervalSec) * time.Second
}

// AuthConfig holds JWT settings. TokenTTL takes a Go duration, a day count
// such as "7d" or plain seconds; an empty value issues tokens without expiry.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
	TokenTTL  string `json:"token_ttl"`
}

// WebhookConfig holds outbound relay delivery settings
type WebhookConfig struct {
	TimeoutMs int    `json:"timeout_ms"`
	UserAgent string `json:"user_agent"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig selects the span exporter
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	ServiceName  string  `json:"service_name"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
	UseStdout    bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
