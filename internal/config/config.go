package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"waprofiles/internal/auth"
	"waprofiles/internal/constants"
	"waprofiles/internal/models"
	"waprofiles/internal/security"
	pkgconstants "waprofiles/pkg/constants"
	"waprofiles/pkg/whatsapp/types"
)

var (
	ErrMissingWhatsAppURL = models.ConfigError{Message: "missing WhatsApp API URL"}
	ErrMissingJWTSecret   = models.ConfigError{Message: "missing JWT secret (set JWT_SECRET environment variable)"}
)

// IsProduction reports whether WAPROFILES_ENV selects production mode.
func IsProduction() bool {
	return os.Getenv("WAPROFILES_ENV") == "production"
}

func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}
	if err := validate(&config); err != nil {
		return nil, err
	}
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.WhatsApp.APIBaseURL == "" {
		return ErrMissingWhatsAppURL
	}
	if _, err := url.ParseRequestURI(c.WhatsApp.APIBaseURL); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid WhatsApp API URL: %v", err)}
	}
	if c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if _, err := auth.ParseTTL(c.Auth.TokenTTL); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid token TTL: %v", err)}
	}

	switch c.WhatsApp.EventTransport {
	case "":
		c.WhatsApp.EventTransport = types.TransportWebhook
	case types.TransportWebhook, types.TransportWebSocket:
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown event transport: %s", c.WhatsApp.EventTransport)}
	}
	if c.WhatsApp.EventTransport == types.TransportWebhook && c.WhatsApp.PublicWebhookURL == "" {
		fmt.Fprintf(os.Stderr, "WARNING: public webhook URL not set. WAHA cannot report session status; set WAPROFILES_PUBLIC_WEBHOOK_URL or use the websocket transport.\n")
	}

	setDefaults(c)

	if c.Session.PairingPollAttempts < 1 {
		return models.ConfigError{Message: "pairing_poll_attempts must be at least 1"}
	}
	return nil
}

func setDefaults(c *models.Config) {
	defaultInt(&c.Server.ReadTimeoutSec, constants.DefaultServerReadTimeoutSec)
	defaultInt(&c.Server.WriteTimeoutSec, constants.DefaultServerWriteTimeoutSec)
	defaultInt(&c.Server.IdleTimeoutSec, constants.DefaultServerIdleTimeoutSec)
	defaultInt(&c.Server.ShutdownTimeoutSec, constants.DefaultGracefulShutdownSec)
	if c.Server.Port == "" {
		c.Server.Port = strconv.Itoa(constants.DefaultServerPort)
	}

	if c.WhatsApp.SessionPrefix == "" {
		c.WhatsApp.SessionPrefix = pkgconstants.DefaultSessionPrefix
	}
	defaultInt(&c.WhatsApp.TimeoutMs, pkgconstants.DefaultWhatsAppTimeoutMs)
	defaultInt(&c.WhatsApp.QRRefreshSec, pkgconstants.DefaultQRRefreshSec)

	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}

	defaultInt(&c.Session.InitTimeoutMs, constants.DefaultInitTimeoutMs)
	defaultInt(&c.Session.PairingPollIntervalMs, constants.DefaultPairingPollIntervalMs)
	if c.Session.PairingPollAttempts == 0 {
		c.Session.PairingPollAttempts = constants.DefaultPairingPollAttempts
	}
	defaultInt(&c.Session.QueryTimeoutMs, constants.DefaultQueryTimeoutMs)
	defaultInt(&c.Session.QRRequestTimeoutMs, constants.DefaultQRRequestTimeoutMs)
	defaultInt(&c.Session.HealthCheckIntervalSec, constants.DefaultSessionHealthCheckSec)
	defaultInt(&c.Session.EventBuffer, pkgconstants.DefaultEventBufferSize)

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = constants.DefaultTokenIssuer
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = constants.DefaultTokenTTL
	}

	defaultInt(&c.Webhook.TimeoutMs, constants.DefaultWebhookTimeoutMs)
	if c.Webhook.UserAgent == "" {
		c.Webhook.UserAgent = constants.DefaultWebhookUserAgent
	}

	defaultInt(&c.Retry.InitialBackoffMs, constants.DefaultRetryBackoffMs)
	defaultInt(&c.Retry.MaxBackoffMs, constants.DefaultMaxBackoffMs)
	defaultInt(&c.Retry.MaxAttempts, constants.DefaultMaxAttempts)

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "waprofiles"
	}
	if c.LogLevel == "" {
		c.LogLevel = constants.DefaultLogLevel
	}
}

func defaultInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func applyEnvironmentOverrides(c *models.Config) error {
	if apiURL := os.Getenv("WHATSAPP_API_URL"); apiURL != "" {
		c.WhatsApp.APIBaseURL = apiURL
	}
	if key := os.Getenv("WHATSAPP_API_KEY"); key != "" {
		c.WhatsApp.APIKey = key
	}

	// SECURITY: secrets should be set via environment variables
	if secret := os.Getenv("WAPROFILES_WHATSAPP_WEBHOOK_SECRET"); secret != "" {
		c.WhatsApp.WebhookSecret = secret
	}
	if hookURL := os.Getenv("WAPROFILES_PUBLIC_WEBHOOK_URL"); hookURL != "" {
		c.WhatsApp.PublicWebhookURL = hookURL
	}
	if prefix := os.Getenv("WA_SESSION_PREFIX"); prefix != "" {
		c.WhatsApp.SessionPrefix = prefix
	}

	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if ttl := os.Getenv("JWT_EXPIRES_IN"); ttl != "" {
		c.Auth.TokenTTL = ttl
	}

	if port := os.Getenv("PORT"); port != "" {
		if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
			return models.ConfigError{Message: fmt.Sprintf("invalid PORT: %q", port)}
		}
		c.Server.Port = port
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if IsProduction() {
		if c.WhatsApp.WebhookSecret == "" && c.WhatsApp.EventTransport == types.TransportWebhook {
			return models.ConfigError{Message: "WhatsApp webhook secret is required in production (set WAPROFILES_WHATSAPP_WEBHOOK_SECRET environment variable)"}
		}
		if c.WhatsApp.WebhookSecret != "" && len(c.WhatsApp.WebhookSecret) < constants.MinWebhookSecretLen {
			return models.ConfigError{Message: fmt.Sprintf("WhatsApp webhook secret must be at least %d characters long", constants.MinWebhookSecretLen)}
		}
		if len(c.Auth.JWTSecret) < constants.MinJWTSecretLength {
			return models.ConfigError{Message: fmt.Sprintf("JWT secret must be at least %d characters long", constants.MinJWTSecretLength)}
		}
		if strings.EqualFold(c.LogLevel, "debug") {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
		return nil
	}

	if c.WhatsApp.WebhookSecret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: WhatsApp webhook secret not set. Set WAPROFILES_WHATSAPP_WEBHOOK_SECRET environment variable for security.\n")
	}
	return nil
}
