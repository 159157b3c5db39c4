package service

import (
	"context"
	"strings"
	"time"

	apperrors "waprofiles/internal/errors"
	"waprofiles/internal/metrics"
	"waprofiles/internal/models"
	"waprofiles/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// MessageService sends text messages on behalf of a profile.
type MessageService struct {
	sessions SessionManager
	logger   *logrus.Logger
}

func NewMessageService(sessions SessionManager, logger *logrus.Logger) *MessageService {
	return &MessageService{sessions: sessions, logger: logger}
}

// NormalizeDirectChatID keeps ids already ending in @c.us and otherwise
// strips every non-digit and appends the suffix.
func NormalizeDirectChatID(phone string) string {
	if strings.HasSuffix(phone, types.DirectChatSuffix) {
		return phone
	}
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String() + types.DirectChatSuffix
}

// NormalizeGroupChatID appends @g.us unless present.
func NormalizeGroupChatID(groupID string) string {
	if strings.HasSuffix(groupID, types.GroupChatSuffix) {
		return groupID
	}
	return groupID + types.GroupChatSuffix
}

// SendDirect sends text to a phone number or direct chat id.
func (s *MessageService) SendDirect(ctx context.Context, profile *models.Profile, phone, text string) (*models.SentMessage, error) {
	chatID := NormalizeDirectChatID(phone)
	if chatID == types.DirectChatSuffix {
		return nil, apperrors.NewValidationError("phone", phone, "must contain digits")
	}
	return s.send(ctx, profile, "direct", chatID, text)
}

// SendGroup sends text to a group chat.
func (s *MessageService) SendGroup(ctx context.Context, profile *models.Profile, groupID, text string) (*models.SentMessage, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, apperrors.NewValidationError("groupId", groupID, "is required")
	}
	return s.send(ctx, profile, "group", NormalizeGroupChatID(groupID), text)
}

func (s *MessageService) send(ctx context.Context, profile *models.Profile, kind, chatID, text string) (*models.SentMessage, error) {
	conn, err := authenticatedConnection(ctx, s.sessions, profile)
	if err != nil {
		return nil, err
	}

	key := profile.SessionKey()
	log := profileLogger(s.logger, "messages", key).WithField(LogFieldChatID, chatField(ctx, chatID))
	labels := map[string]string{"kind": kind}

	start := time.Now()
	sent, err := conn.SendText(ctx, chatID, text)
	metrics.RecordTimer("message_send_duration", time.Since(start), labels, "Provider send latency")
	if err != nil {
		metrics.IncrementCounter("message_send_failures_total", labels, "Failed message sends")
		appErr := apperrors.NewProviderError(key, "send_text", err)
		log.WithError(err).Error("Failed to send message")
		return nil, appErr
	}

	metrics.IncrementCounter("messages_sent_total", labels, "Messages sent")
	log.WithField(LogFieldMessageID, messageField(ctx, sent.ID)).Info("Message sent")
	return &models.SentMessage{ID: sent.ID, Timestamp: sent.Timestamp}, nil
}
