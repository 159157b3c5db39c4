package validation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"waprofiles/internal/constants"
	"waprofiles/internal/errors"
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field    string `json:"param"`
	Message  string `json:"msg"`
	Location string `json:"location"`
}

// Errors collects field errors for a single request.
type Errors []FieldError

func (e *Errors) add(location, field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message, Location: location})
}

// Err returns nil when nothing was rejected, otherwise a VALIDATION_FAILED
// error whose user message is the first field message.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	messages := make([]string, 0, len(e))
	for _, fe := range e {
		messages = append(messages, fe.Message)
	}
	return errors.New(errors.ErrCodeValidationFailed, strings.Join(messages, "; ")).
		WithContext("errors", []FieldError(e)).
		WithUserMessage(e[0].Message)
}

// ProfileInput is the body of profile create and update requests.
type ProfileInput struct {
	Name          *string `json:"name"`
	WebhookURL    *string `json:"webhookUrl"`
	EnableWebhook *bool   `json:"enableWebhook"`
}

// ValidateProfileInput checks a profile body. Create requires a name.
func ValidateProfileInput(in ProfileInput, create bool) error {
	var errs Errors
	switch {
	case in.Name == nil && create:
		errs.add("body", "name", "Name is required")
	case in.Name != nil:
		if err := ValidateStringLength(strings.TrimSpace(*in.Name), "name", constants.MinProfileNameLength, constants.MaxProfileNameLength); err != nil {
			errs.add("body", "name", "Name must be between 3 and 50 characters")
		}
	}
	if in.WebhookURL != nil && *in.WebhookURL != "" {
		if err := ValidateWebhookURL(*in.WebhookURL); err != nil {
			errs.add("body", "webhookUrl", "Webhook URL must be a valid URL")
		}
	}
	return errs.Err()
}

// ValidateWebhookURL accepts absolute http and https URLs with a host.
func ValidateWebhookURL(raw string) error {
	if len(raw) > constants.MaxWebhookURLLength {
		return errors.NewValidationError("webhookUrl", raw, fmt.Sprintf("must be at most %d characters", constants.MaxWebhookURLLength))
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return errors.NewValidationError("webhookUrl", raw, "must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.NewValidationError("webhookUrl", raw, "scheme must be http or https")
	}
	if u.Hostname() == "" {
		return errors.NewValidationError("webhookUrl", raw, "host is required")
	}
	return nil
}

// ParseProfileID parses the profileId query parameter.
func ParseProfileID(raw string) (int64, error) {
	return parseID("query", "profileId", "Profile ID", raw)
}

// ParsePathID parses the {id} route parameter.
func ParsePathID(raw string) (int64, error) {
	return parseID("params", "id", "Profile ID", raw)
}

func parseID(location, field, label, raw string) (int64, error) {
	var errs Errors
	if strings.TrimSpace(raw) == "" {
		errs.add(location, field, label+" is required")
		return 0, errs.Err()
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		errs.add(location, field, label+" must be an integer")
		return 0, errs.Err()
	}
	return id, nil
}

// SendInput is the body of direct and group send requests. ProfileID accepts
// a JSON number or a numeric string.
type SendInput struct {
	ProfileID json.Number `json:"profileId"`
	Phone     string      `json:"phone"`
	GroupID   string      `json:"groupId"`
	Message   string      `json:"message"`
}

// ValidateSendInput checks a send body; group selects groupId over phone.
func ValidateSendInput(in SendInput, group bool) (int64, error) {
	var errs Errors
	var profileID int64
	if in.ProfileID == "" {
		errs.add("body", "profileId", "Profile ID is required")
	} else if id, err := strconv.ParseInt(in.ProfileID.String(), 10, 64); err != nil || id <= 0 {
		errs.add("body", "profileId", "Profile ID must be an integer")
	} else {
		profileID = id
	}

	if group {
		if strings.TrimSpace(in.GroupID) == "" {
			errs.add("body", "groupId", "Group ID is required")
		}
	} else if err := ValidatePhoneNumber(in.Phone); err != nil {
		errs.add("body", "phone", errors.GetUserMessage(err))
	}

	switch {
	case in.Message == "":
		errs.add("body", "message", "Message is required")
	case utf8.RuneCountInString(in.Message) > constants.MaxMessageLength:
		errs.add("body", "message", fmt.Sprintf("Message must be at most %d characters", constants.MaxMessageLength))
	}
	return profileID, errs.Err()
}

// ValidatePhoneNumber requires a phone number or direct chat id with digits.
func ValidatePhoneNumber(phone string) error {
	if strings.TrimSpace(phone) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty").
			WithUserMessage("Phone number is required")
	}
	for _, r := range phone {
		if unicode.IsDigit(r) {
			return nil
		}
	}
	return errors.New(errors.ErrCodeInvalidInput, "phone number has no digits").
		WithUserMessage("Phone number must contain digits")
}

// ValidateHTTPRequestSize rejects requests whose declared body is too large.
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request body too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes)).
			WithUserMessage("Request body too large")
	}
	return nil
}

// ValidateStringLength checks a length in characters.
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	n := utf8.RuneCountInString(value)
	if n < minLength {
		return errors.NewValidationError(fieldName, value, fmt.Sprintf("must be at least %d characters", minLength))
	}
	if maxLength > 0 && n > maxLength {
		return errors.NewValidationError(fieldName, value, fmt.Sprintf("must be at most %d characters", maxLength))
	}
	return nil
}
