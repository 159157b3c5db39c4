package types

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrSessionGone is returned by Ping when the provider reports the session
// stopped or failed.
var ErrSessionGone = errors.New("session no longer running")

// Session represents a WAHA session
type Session struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// WebhookConfig is a WAHA per-session webhook registration.
type WebhookConfig struct {
	URL          string         `json:"url"`
	Events       []string       `json:"events"`
	HMAC         *WebhookHMAC   `json:"hmac,omitempty"`
	CustomHeader []CustomHeader `json:"customHeaders,omitempty"`
}

type WebhookHMAC struct {
	Key string `json:"key"`
}

type CustomHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SessionConfig is the config block of a WAHA session.
type SessionConfig struct {
	Webhooks []WebhookConfig `json:"webhooks,omitempty"`
}

// CreateSessionRequest creates and optionally starts a WAHA session.
type CreateSessionRequest struct {
	Name   string         `json:"name"`
	Start  bool           `json:"start"`
	Config *SessionConfig `json:"config,omitempty"`
}

// WebhookEvent represents a webhook or websocket event from WAHA
type WebhookEvent struct {
	Event   string          `json:"event"`
	Session string          `json:"session"`
	Payload json.RawMessage `json:"payload"`

	// Timestamp is when WAHA emitted the event, in unix milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// SessionStatusPayload is the payload of a session.status event.
type SessionStatusPayload struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// MessagePayload is the payload of a message event.
type MessagePayload struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	From      string `json:"from"`
	FromMe    bool   `json:"fromMe"`
	To        string `json:"to"`
	Body      string `json:"body"`
}

// IsGroupMessage returns true if the message is from a group chat
func (m *MessagePayload) IsGroupMessage() bool {
	return strings.HasSuffix(m.From, GroupChatSuffix)
}

// QRValue is the raw pairing code returned by /auth/qr?format=raw.
type QRValue struct {
	Value string `json:"value"`
}

// SendMessageRequest represents the base request for sending messages
type SendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	Session string `json:"session"`
}

// SentMessage is the provider-assigned identity of a sent message.
type SentMessage struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

type messageKey struct {
	FromMe     bool   `json:"fromMe"`
	Remote     string `json:"remote"`
	ID         string `json:"id"`
	Serialized string `json:"_serialized"`
}

// WAHAMessageResponse represents the WAHA sendText response. Depending on the
// engine the id is either an object or a plain string.
type WAHAMessageResponse struct {
	ID        json.RawMessage `json:"id"`
	Timestamp int64           `json:"timestamp"`
	Data      *struct {
		ID *messageKey `json:"id"`
		T  int64       `json:"t"`
	} `json:"_data"`
}

// ToSentMessage extracts the short message id and timestamp.
func (r *WAHAMessageResponse) ToSentMessage() *SentMessage {
	sent := &SentMessage{Timestamp: r.Timestamp}

	if len(r.ID) > 0 {
		var key messageKey
		var plain string
		if err := json.Unmarshal(r.ID, &key); err == nil && key.ID != "" {
			sent.ID = key.ID
		} else if err := json.Unmarshal(r.ID, &plain); err == nil {
			sent.ID = plain
		}
	}
	if sent.ID == "" && r.Data != nil && r.Data.ID != nil {
		sent.ID = r.Data.ID.ID
	}
	if sent.Timestamp == 0 && r.Data != nil {
		sent.Timestamp = r.Data.T
	}
	if sent.Timestamp == 0 {
		sent.Timestamp = time.Now().Unix()
	}
	return sent
}

// WAHAErrorResponse represents error responses from WAHA API
type WAHAErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Text returns the most specific message in the response.
func (e *WAHAErrorResponse) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// Contact represents a WhatsApp contact from WAHA API
type Contact struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Name        string `json:"name"`
	PushName    string `json:"pushname"`
	ShortName   string `json:"shortName"`
	IsMe        bool   `json:"isMe"`
	IsGroup     bool   `json:"isGroup"`
	IsWAContact bool   `json:"isWAContact"`
	IsMyContact bool   `json:"isMyContact"`
	IsBlocked   bool   `json:"isBlocked"`
}

// GetDisplayName returns the best available display name for the contact
func (c *Contact) GetDisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.PushName != "" {
		return c.PushName
	}
	return "Unknown"
}

// FlexibleID decodes either a plain string id or an id object carrying
// "_serialized", as returned by different WAHA engines.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*f = FlexibleID(plain)
		return nil
	}
	var key messageKey
	if err := json.Unmarshal(data, &key); err != nil {
		return err
	}
	*f = FlexibleID(key.Serialized)
	return nil
}

func (f FlexibleID) String() string {
	return string(f)
}

// Chat is an entry of the chat list.
type Chat struct {
	ID               FlexibleID     `json:"id"`
	Name             string         `json:"name"`
	IsGroup          bool           `json:"isGroup"`
	ParticipantCount int            `json:"-"`
	GroupMetadata    *GroupMetadata `json:"groupMetadata,omitempty"`
}

// GroupMetadata carries the participants of a group chat.
type GroupMetadata struct {
	Participants []GroupParticipant `json:"participants"`
}

// GroupParticipant represents a participant in a WhatsApp group
type GroupParticipant struct {
	ID      FlexibleID `json:"id"`
	IsAdmin bool       `json:"isAdmin"`
}

// IsGroupChat reports whether the chat is a group, either by flag or by id suffix.
func (c *Chat) IsGroupChat() bool {
	return c.IsGroup || strings.HasSuffix(c.ID.String(), GroupChatSuffix)
}

// Participants returns the participant count, preferring group metadata.
func (c *Chat) Participants() int {
	if c.GroupMetadata != nil {
		return len(c.GroupMetadata.Participants)
	}
	return c.ParticipantCount
}

// ClientConfig represents the configuration for the WAHA provider
type ClientConfig struct {
	BaseURL          string        `json:"base_url"`
	APIKey           string        `json:"api_key"`
	SessionPrefix    string        `json:"session_prefix"`
	Timeout          time.Duration `json:"timeout"`
	PublicWebhookURL string        `json:"public_webhook_url"`
	WebhookSecret    string        `json:"webhook_secret"`
	EventTransport   string        `json:"event_transport"`
	EventBuffer      int           `json:"event_buffer"`
}
