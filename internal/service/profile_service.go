package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"waprofiles/internal/database"
	apperrors "waprofiles/internal/errors"
	"waprofiles/internal/models"
	"waprofiles/internal/session"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const restoreParallelism = 4

// ProfileStore persists profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, name, webhookURL string, enableWebhook bool) (*models.Profile, error)
	SetProfileCredentials(ctx context.Context, id int64, token, session string) error
	ListProfiles(ctx context.Context) ([]*models.Profile, error)
	GetProfile(ctx context.Context, id int64) (*models.Profile, error)
	GetProfileByToken(ctx context.Context, token string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, p *models.Profile) error
	DeleteProfile(ctx context.Context, id int64) error
}

// TokenAuthority issues and verifies profile access tokens.
type TokenAuthority interface {
	Issue(profileID int64) (string, error)
	Verify(token string) (int64, error)
}

// SessionNamer maps a profile id to the provider's session name.
type SessionNamer interface {
	SessionName(profileID string) string
}

// ProfileService ties profile rows to their WhatsApp sessions.
type ProfileService struct {
	store    ProfileStore
	sessions SessionManager
	tokens   TokenAuthority
	namer    SessionNamer
	logger   *logrus.Logger
}

func NewProfileService(store ProfileStore, sessions SessionManager, tokens TokenAuthority, namer SessionNamer, logger *logrus.Logger) *ProfileService {
	return &ProfileService{
		store:    store,
		sessions: sessions,
		tokens:   tokens,
		namer:    namer,
		logger:   logger,
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Create stores a profile, issues its access token and starts its session.
// A session that fails to start does not fail the creation; pairing retries it.
func (s *ProfileService) Create(ctx context.Context, name, webhookURL string, enableWebhook bool) (*models.Profile, error) {
	profile, err := s.store.CreateProfile(ctx, strings.TrimSpace(name), webhookURL, enableWebhook)
	if err != nil {
		return nil, apperrors.NewDatabaseError("create profile", err)
	}

	token, err := s.tokens.Issue(profile.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to issue token").
			WithContext("profile_id", profile.ID)
	}
	sessionName := s.namer.SessionName(profile.SessionKey())
	if err := s.store.SetProfileCredentials(ctx, profile.ID, token, sessionName); err != nil {
		return nil, storeError("store profile credentials", profile.ID, err)
	}
	profile.Token = token
	profile.Session = sessionName

	log := profileLogger(s.logger, "profiles", profile.SessionKey())
	result, err := s.sessions.Initialize(ctx, profile.SessionKey(), profile.WebhookURL, profile.EnableWebhook)
	if err != nil {
		log.WithError(err).Warn("Profile created but session failed to start")
	} else {
		log.WithField(LogFieldOutcome, result.Outcome.String()).Info("Profile created")
	}
	return profile, nil
}

// List returns every profile with its live session state.
func (s *ProfileService) List(ctx context.Context) ([]models.ProfileStatus, error) {
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list profiles", err)
	}
	out := make([]models.ProfileStatus, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, s.withStatus(p))
	}
	return out, nil
}

func (s *ProfileService) Get(ctx context.Context, id int64) (*models.ProfileStatus, error) {
	profile, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	status := s.withStatus(profile)
	return &status, nil
}

func (s *ProfileService) withStatus(p *models.Profile) models.ProfileStatus {
	key := p.SessionKey()
	status := "inactive"
	if state, ok := s.sessions.Status(key); ok {
		status = state.String()
	}
	return models.ProfileStatus{
		Profile:       p,
		Status:        status,
		Authenticated: s.sessions.IsAuthenticated(key),
	}
}

// Lookup returns the profile row for id, or NOT_FOUND.
func (s *ProfileService) Lookup(ctx context.Context, id int64) (*models.Profile, error) {
	return s.load(ctx, id)
}

func (s *ProfileService) load(ctx context.Context, id int64) (*models.Profile, error) {
	profile, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return nil, storeError("get profile", id, err)
	}
	return profile, nil
}

// Update applies the non-nil fields and rebinds the relay of a live session.
func (s *ProfileService) Update(ctx context.Context, id int64, upd models.ProfileUpdate) (*models.Profile, error) {
	profile, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		profile.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.WebhookURL != nil {
		profile.WebhookURL = *upd.WebhookURL
	}
	if upd.EnableWebhook != nil {
		profile.EnableWebhook = *upd.EnableWebhook
	}

	if err := s.store.UpdateProfile(ctx, profile); err != nil {
		return nil, storeError("update profile", id, err)
	}

	key := profile.SessionKey()
	if err := s.sessions.Rebind(key, profile.WebhookURL, profile.EnableWebhook); err != nil && !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		return nil, err
	}
	profileLogger(s.logger, "profiles", key).Info("Profile updated")
	return profile, nil
}

// Delete destroys the profile's session, if any, then removes the row.
func (s *ProfileService) Delete(ctx context.Context, id int64) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}

	key := formatID(id)
	log := profileLogger(s.logger, "profiles", key)
	if err := s.sessions.Destroy(ctx, key); err != nil && !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		log.WithError(err).Warn("Session teardown failed while deleting profile")
	}

	if err := s.store.DeleteProfile(ctx, id); err != nil {
		return storeError("delete profile", id, err)
	}
	log.Info("Profile deleted")
	return nil
}

// PairingCode returns a code to scan for an unpaired profile.
func (s *ProfileService) PairingCode(ctx context.Context, id int64) (string, error) {
	profile, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	return s.sessions.AcquirePairingCode(ctx, profile.SessionKey(), profile.WebhookURL, profile.EnableWebhook)
}

// Logout unlinks the profile's WhatsApp account.
func (s *ProfileService) Logout(ctx context.Context, id int64) error {
	profile, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	return s.sessions.Logout(ctx, profile.SessionKey())
}

// Authenticate resolves a bearer token to its profile. The token must verify
// and still be the one stored for the profile.
func (s *ProfileService) Authenticate(ctx context.Context, token string) (*models.Profile, error) {
	if token == "" {
		return nil, apperrors.NewAuthError("Access token is required")
	}
	profileID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperrors.NewForbiddenError("Invalid or expired token")
	}

	profile, err := s.store.GetProfileByToken(ctx, token)
	if errors.Is(err, database.ErrProfileNotFound) {
		return nil, apperrors.NewForbiddenError("Invalid token")
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("authenticate", err)
	}
	if profile.ID != profileID {
		return nil, apperrors.NewForbiddenError("Invalid token")
	}
	return profile, nil
}

// RestoreSessions starts the session of every stored profile so paired
// accounts resume relaying without waiting for a request.
func (s *ProfileService) RestoreSessions(ctx context.Context) error {
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return apperrors.NewDatabaseError("list profiles", err)
	}

	var g errgroup.Group
	g.SetLimit(restoreParallelism)
	for _, p := range profiles {
		g.Go(func() error {
			result, err := s.sessions.Initialize(ctx, p.SessionKey(), p.WebhookURL, p.EnableWebhook)
			log := profileLogger(s.logger, "profiles", p.SessionKey())
			if err != nil {
				log.WithError(err).Warn("Failed to restore session")
				return nil
			}
			log.WithField(LogFieldOutcome, result.Outcome.String()).Info("Session restored")
			return nil
		})
	}
	_ = g.Wait()
	s.logger.WithField(LogFieldCount, len(profiles)).Info("Session restore finished")
	return nil
}

var _ SessionManager = (*session.Manager)(nil)
