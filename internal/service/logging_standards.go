package service

// Standard log field names. Use these exact keys so log queries work across
// the profile, messaging and directory services.
const (
	// Core identifiers
	LogFieldProfileID  = "profile_id"
	LogFieldSession    = "session"
	LogFieldMessageID  = "message_id"
	LogFieldChatID     = "chat_id"
	LogFieldDeliveryID = "delivery_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldQuery     = "query"

	// Results
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldOutcome  = "outcome"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldWebhookURL = "webhook_url"
	LogFieldStatusCode = "status_code"

	// HTTP requests
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"
	LogFieldMethod    = "method"
	LogFieldRoute     = "route"
	LogFieldRemoteIP  = "remote_ip"
	LogFieldUserAgent = "user_agent"
	LogFieldSize      = "size_bytes"
)

// Message patterns:
//
//	"Starting [operation]"      before a provider call that may block
//	"Failed to [operation]"     with the error attached via WithError
//	"[Operation] completed"     at debug unless the result changes state
