package service

import (
	"context"

	"waprofiles/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks ctx so chat ids are logged unmasked.
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// chatField renders a chat id for logs, masked unless verbose.
func chatField(ctx context.Context, chatID string) string {
	if IsVerboseLogging(ctx) {
		return chatID
	}
	return privacy.MaskChatID(chatID)
}

// messageField renders a message id for logs, masked unless verbose.
func messageField(ctx context.Context, messageID string) string {
	if IsVerboseLogging(ctx) {
		return messageID
	}
	return privacy.MaskMessageID(messageID)
}

func profileLogger(logger *logrus.Logger, service, profileID string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		LogFieldService:   service,
		LogFieldProfileID: profileID,
	})
}
