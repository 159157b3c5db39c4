package constants

// Default server configuration values
const (
	DefaultServerPort            = 3000
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 30
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultDatabasePath          = "waprofiles.db"
	DefaultConfigPath            = "config.json"
	DefaultLogLevel              = "info"
	APIVersion                   = "1.0.0"
)

// Default session lifecycle values
const (
	DefaultInitTimeoutMs         = 30000
	DefaultPairingPollIntervalMs = 1000
	DefaultPairingPollAttempts   = 10
	DefaultQueryTimeoutMs        = 10000
	DefaultQRRequestTimeoutMs    = 15000
	DefaultSessionHealthCheckSec = 30
	DefaultSessionStartupSec     = 120
)

// Default webhook delivery values
const (
	DefaultWebhookTimeoutMs  = 10000
	DefaultWebhookUserAgent  = "waprofiles-webhook/1.0"
	DefaultWebhookMaxSkewSec = 300
	MaxWebhookBodyBytes      = 5 * 1024 * 1024
)

// Default retry values
const (
	DefaultRetryBackoffMs        = 500
	DefaultMaxBackoffMs          = 5000
	DefaultMaxAttempts           = 5
	DefaultDatabaseRetryAttempts = 3
)

// Circuit breaker defaults for provider queries
const (
	DefaultBreakerMaxFailures = 5
	DefaultBreakerOpenSec     = 30
)

// Auth defaults
const (
	DefaultTokenTTL     = "7d"
	DefaultTokenIssuer  = "waprofiles"
	MinJWTSecretLength  = 32
	MinWebhookSecretLen = 32
)

// Profile validation limits
const (
	MinProfileNameLength = 3
	MaxProfileNameLength = 50
	MaxWebhookURLLength  = 2048
	MaxMessageLength     = 65536
	MaxRequestBodyBytes  = 1024 * 1024
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultMessageIDLength = 8
)

// Field encryption salts. They only need to be stable for a deployment.
const (
	EncryptionSalt       = "waprofiles-field-encryption-v1"
	EncryptionLookupSalt = "waprofiles-lookup-nonce-v1"
)

// File permission constants
const (
	DefaultFilePermissions = 0600
)
