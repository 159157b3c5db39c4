package service

import (
	"context"
	"errors"

	"waprofiles/internal/database"
	apperrors "waprofiles/internal/errors"
	"waprofiles/internal/models"
	"waprofiles/internal/session"
	"waprofiles/pkg/whatsapp/types"
)

// SessionManager is the part of the session lifecycle manager the services
// depend on.
type SessionManager interface {
	Initialize(ctx context.Context, profileID, webhookURL string, webhookEnabled bool) (session.InitResult, error)
	EnsureAuthenticated(ctx context.Context, profileID, webhookURL string, webhookEnabled bool) error
	AcquirePairingCode(ctx context.Context, profileID, webhookURL string, webhookEnabled bool) (string, error)
	Connection(profileID string) (types.Connection, bool)
	IsAuthenticated(profileID string) bool
	Status(profileID string) (session.State, bool)
	Rebind(profileID, webhookURL string, webhookEnabled bool) error
	Destroy(ctx context.Context, profileID string) error
	Logout(ctx context.Context, profileID string) error
}

// authenticatedConnection lazily starts the profile's session and returns its
// handle once paired.
func authenticatedConnection(ctx context.Context, sessions SessionManager, profile *models.Profile) (types.Connection, error) {
	key := profile.SessionKey()
	if err := sessions.EnsureAuthenticated(ctx, key, profile.WebhookURL, profile.EnableWebhook); err != nil {
		return nil, err
	}
	conn, ok := sessions.Connection(key)
	if !ok {
		return nil, apperrors.NewSessionNotFoundError(key)
	}
	return conn, nil
}

// storeError maps persistence failures to application errors.
func storeError(operation string, profileID int64, err error) error {
	if errors.Is(err, database.ErrProfileNotFound) {
		return apperrors.NewNotFoundError("Profile", formatID(profileID))
	}
	return apperrors.NewDatabaseError(operation, err)
}
