package models

import (
	"strconv"
	"time"
)

// Profile is one tenant: a WhatsApp account driven through this service.
type Profile struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Token         string    `json:"token,omitempty"`
	Session       string    `json:"session"`
	EnableWebhook bool      `json:"enableWebhook"`
	WebhookURL    string    `json:"webhookUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SessionKey is the registry key for the profile's session.
func (p *Profile) SessionKey() string {
	return strconv.FormatInt(p.ID, 10)
}

// ProfileStatus is a profile enriched with its live session state.
type ProfileStatus struct {
	*Profile
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
}

// ProfileUpdate carries optional profile changes; nil fields are left as is.
type ProfileUpdate struct {
	Name          *string `json:"name"`
	WebhookURL    *string `json:"webhookUrl"`
	EnableWebhook *bool   `json:"enableWebhook"`
}
