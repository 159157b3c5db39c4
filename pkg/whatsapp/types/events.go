package types

import "time"

// EventKind tags an event emitted by a provider connection.
type EventKind int

const (
	EventPairingCode EventKind = iota + 1
	EventReady
	EventDisconnected
	EventAuthFailure
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventPairingCode:
		return "pairing_code"
	case EventReady:
		return "ready"
	case EventDisconnected:
		return "disconnected"
	case EventAuthFailure:
		return "auth_failure"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is a single provider notification for one connection. Code is set for
// EventPairingCode, Message for EventMessage and Reason for the failure kinds.
type Event struct {
	Kind    EventKind
	Code    string
	Reason  string
	Message *InboundMessage
}

// InboundMessage is a message received by a connected account.
type InboundMessage struct {
	ID        string
	From      string
	To        string
	Body      string
	Timestamp time.Time
}
