package models

import "time"

// Contact is one address book entry of a profile
type Contact struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Number      string `json:"number"`
	IsGroup     bool   `json:"isGroup"`
	IsWAContact bool   `json:"isWAContact"`
}

// Group is one group chat the profile participates in
type Group struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Participants int    `json:"participants"`
	IsGroup      bool   `json:"isGroup"`
}

// SentMessage identifies a message accepted by the provider
type SentMessage struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// RelayTimestampLayout is the UTC ISO-8601 layout with millisecond precision
// used in relay envelopes.
const RelayTimestampLayout = "2006-01-02T15:04:05.000Z"

// RelayEnvelope is the JSON body posted to a profile's webhook for each inbound message.
type RelayEnvelope struct {
	ProfileID string `json:"profileId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// FormatRelayTimestamp renders t in RelayTimestampLayout.
func FormatRelayTimestamp(t time.Time) string {
	return t.UTC().Format(RelayTimestampLayout)
}
