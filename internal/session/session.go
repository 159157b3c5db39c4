package session

import (
	"sync"
	"sync/atomic"
	"time"

	"waprofiles/pkg/whatsapp/types"
)

// State is the lifecycle position of a registered session. A profile with no
// registry entry is absent.
type State int32

const (
	StateInitializing State = iota
	StateAwaitingPairing
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingPairing:
		return "awaiting_pairing"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MessageListener receives inbound messages for one session.
type MessageListener func(msg types.InboundMessage)

// Session is the live connection of one profile together with its lifecycle
// state and inbound message listener.
type Session struct {
	ProfileID string
	CreatedAt time.Time

	conn    types.Connection
	state   atomic.Int32
	stopped atomic.Bool
	hs      *handshake

	mu       sync.RWMutex
	listener MessageListener
}

func newSession(profileID string, conn types.Connection) *Session {
	return &Session{
		ProfileID: profileID,
		CreatedAt: time.Now(),
		conn:      conn,
		hs:        newHandshake(),
	}
}

// Conn returns the provider connection backing the session.
func (s *Session) Conn() types.Connection {
	return s.conn
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Stopped reports whether the session was torn down. Events that arrive
// afterwards are dropped.
func (s *Session) Stopped() bool {
	return s.stopped.Load()
}

func (s *Session) markStopped() {
	s.stopped.Store(true)
	s.setState(StateDisconnected)
}

func (s *Session) setListener(l MessageListener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

func (s *Session) currentListener() MessageListener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listener
}

// HasListener reports whether inbound messages are currently relayed.
func (s *Session) HasListener() bool {
	return s.currentListener() != nil
}
