package types

import (
	"context"
)

// Provider builds connections to the messaging network, one per profile.
type Provider interface {
	// Connect constructs a connection bound to the profile's durable credential
	// namespace. The connection is not started.
	Connect(ctx context.Context, profileID string) (Connection, error)
}

// Connection is one live account session owned by a provider.
type Connection interface {
	// Events delivers pairing, readiness, failure and inbound message events.
	// The channel is closed once the connection is destroyed.
	Events() <-chan Event
	Start(ctx context.Context) error
	IsAuthenticated() bool
	SendText(ctx context.Context, chatID, text string) (*SentMessage, error)
	GetContacts(ctx context.Context) ([]Contact, error)
	GetChats(ctx context.Context) ([]Chat, error)
	Logout(ctx context.Context) error
	Destroy(ctx context.Context) error
	// Ping returns ErrSessionGone when the provider no longer runs the session.
	Ping(ctx context.Context) error
}

// SessionManager manages WAHA sessions by name.
type SessionManager interface {
	Create(ctx context.Context, req CreateSessionRequest) (*Session, error)
	Get(ctx context.Context, name string) (*Session, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Logout(ctx context.Context, name string) error
}
