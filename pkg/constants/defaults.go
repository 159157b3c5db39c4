package constants

// Default timeout values used by client packages
const (
	DefaultHTTPTimeoutSec      = 30
	DefaultWhatsAppTimeoutMs   = 30000
	DefaultQRRefreshSec        = 20
	DefaultStaleStopWindowSec  = 30
	DefaultEventBufferSize     = 16
	DefaultStreamReconnectMs   = 1000
	DefaultStreamMaxReconnectS = 30
)

// Limits used by client packages
const (
	MaxResponseBodyBytes = 10 * 1024 * 1024
	MaxStreamFrameBytes  = 1024 * 1024
	MaxSessionNameLength = 64
)

// Naming
const (
	DefaultSessionPrefix = "profile_"
	DefaultQRImageSize   = 256
)
