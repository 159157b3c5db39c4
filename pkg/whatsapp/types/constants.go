package types

// Chat id domain markers.
const (
	DirectChatSuffix = "@c.us"
	GroupChatSuffix  = "@g.us"
)

const (
	APIBase          = "/api"
	EndpointSendText = "/sendText"
	EndpointSessions = "/sessions"

	// Per-session endpoints, relative to /api/{session}
	EndpointAuthQR = "/auth/qr"
	EndpointChats  = "/chats"

	// Contact endpoints
	EndpointContactsAll = "/contacts/all"

	// Session actions, relative to /api/sessions/{session}
	ActionStart  = "/start"
	ActionStop   = "/stop"
	ActionLogout = "/logout"

	// Event stream
	EndpointWebSocket = "/ws"
)

// WAHA webhook event names
const (
	WAHAEventSessionStatus = "session.status"
	WAHAEventMessage       = "message"
)

// WAHA session status values
const (
	WAHAStatusStarting   = "STARTING"
	WAHAStatusScanQRCode = "SCAN_QR_CODE"
	WAHAStatusWorking    = "WORKING"
	WAHAStatusFailed     = "FAILED"
	WAHAStatusStopped    = "STOPPED"
)

// Event transports for receiving WAHA events
const (
	TransportWebhook   = "webhook"
	TransportWebSocket = "websocket"
)
