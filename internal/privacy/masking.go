package privacy

import (
	"net/url"
	"strings"

	"waprofiles/internal/constants"
)

// MaskPhoneNumber keeps the last digits of a phone number.
// "+15551234567" -> "+*******4567"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(phone, "+"); ok {
		return "+" + maskString(rest, constants.DefaultPhoneMaskLength)
	}
	return maskString(phone, constants.DefaultPhoneMaskLength)
}

// MaskChatID masks the user part of a WhatsApp id and keeps its domain.
// "15551234567@c.us" -> "*******4567@c.us"
func MaskChatID(chatID string) string {
	if chatID == "" {
		return ""
	}
	user, domain, ok := strings.Cut(chatID, "@")
	if !ok {
		return maskString(chatID, constants.DefaultPhoneMaskLength)
	}
	return maskString(user, constants.DefaultPhoneMaskLength) + "@" + domain
}

// MaskMessageID masks a WAHA message id of the form fromMe_chatId_messageId.
// "true_15551234567@c.us_3EB0ABCDEF12" -> "true_*******4567@c.us_********EF12"
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}
	parts := strings.SplitN(messageID, "_", 3)
	if len(parts) == 3 {
		return parts[0] + "_" + MaskChatID(parts[1]) + "_" + maskString(parts[2], 4)
	}
	return maskString(messageID, constants.DefaultMessageIDLength)
}

// MaskToken keeps only the last characters of a bearer token.
func MaskToken(token string) string {
	return maskString(token, 6)
}

// MaskWebhookURL keeps scheme and host so deliveries can be told apart
// without leaking path secrets or query parameters.
// "https://hooks.example.com/t/abc?k=v" -> "https://hooks.example.com/***"
func MaskWebhookURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return maskString(raw, 0)
	}
	masked := u.Scheme + "://" + u.Host
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
		masked += "/***"
	}
	return masked
}

// maskString masks all but the last keepLast characters.
func maskString(s string, keepLast int) string {
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields returns a copy of fields with known identifiers masked.
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "phone", "from", "to":
			if strings.Contains(s, "@") {
				masked[k] = MaskChatID(s)
			} else {
				masked[k] = MaskPhoneNumber(s)
			}
		case "chat_id", "group_id":
			masked[k] = MaskChatID(s)
		case "message_id":
			masked[k] = MaskMessageID(s)
		case "token":
			masked[k] = MaskToken(s)
		case "webhook_url":
			masked[k] = MaskWebhookURL(s)
		default:
			masked[k] = v
		}
	}
	return masked
}
