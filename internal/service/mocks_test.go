package service

import (
	"context"
	"io"

	"waprofiles/internal/models"
	"waprofiles/internal/session"
	"waprofiles/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Initialize(ctx context.Context, profileID, webhookURL string, webhookEnabled bool) (session.InitResult, error) {
	args := m.Called(ctx, profileID, webhookURL, webhookEnabled)
	return args.Get(0).(session.InitResult), args.Error(1)
}

func (m *mockSessions) EnsureAuthenticated(ctx context.Context, profileID, webhookURL string, webhookEnabled bool) error {
	args := m.Called(ctx, profileID, webhookURL, webhookEnabled)
	return args.Error(0)
}

func (m *mockSessions) AcquirePairingCode(ctx context.Context, profileID, webhookURL string, webhookEnabled bool) (string, error) {
	args := m.Called(ctx, profileID, webhookURL, webhookEnabled)
	return args.String(0), args.Error(1)
}

func (m *mockSessions) Connection(profileID string) (types.Connection, bool) {
	args := m.Called(profileID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(types.Connection), args.Bool(1)
}

func (m *mockSessions) IsAuthenticated(profileID string) bool {
	return m.Called(profileID).Bool(0)
}

func (m *mockSessions) Status(profileID string) (session.State, bool) {
	args := m.Called(profileID)
	return args.Get(0).(session.State), args.Bool(1)
}

func (m *mockSessions) Rebind(profileID, webhookURL string, webhookEnabled bool) error {
	return m.Called(profileID, webhookURL, webhookEnabled).Error(0)
}

func (m *mockSessions) Destroy(ctx context.Context, profileID string) error {
	return m.Called(ctx, profileID).Error(0)
}

func (m *mockSessions) Logout(ctx context.Context, profileID string) error {
	return m.Called(ctx, profileID).Error(0)
}

type mockConnection struct {
	mock.Mock
}

func (m *mockConnection) Events() <-chan types.Event {
	return nil
}

func (m *mockConnection) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockConnection) IsAuthenticated() bool {
	return m.Called().Bool(0)
}

func (m *mockConnection) SendText(ctx context.Context, chatID, text string) (*types.SentMessage, error) {
	args := m.Called(ctx, chatID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SentMessage), args.Error(1)
}

func (m *mockConnection) GetContacts(ctx context.Context) ([]types.Contact, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Contact), args.Error(1)
}

func (m *mockConnection) GetChats(ctx context.Context) ([]types.Chat, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Chat), args.Error(1)
}

func (m *mockConnection) Logout(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockConnection) Destroy(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockConnection) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateProfile(ctx context.Context, name, webhookURL string, enableWebhook bool) (*models.Profile, error) {
	args := m.Called(ctx, name, webhookURL, enableWebhook)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *mockStore) SetProfileCredentials(ctx context.Context, id int64, token, session string) error {
	return m.Called(ctx, id, token, session).Error(0)
}

func (m *mockStore) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Profile), args.Error(1)
}

func (m *mockStore) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *mockStore) GetProfileByToken(ctx context.Context, token string) (*models.Profile, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *mockStore) UpdateProfile(ctx context.Context, p *models.Profile) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockStore) DeleteProfile(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) Issue(profileID int64) (string, error) {
	args := m.Called(profileID)
	return args.String(0), args.Error(1)
}

func (m *mockTokens) Verify(token string) (int64, error) {
	args := m.Called(token)
	return args.Get(0).(int64), args.Error(1)
}

type prefixNamer string

func (p prefixNamer) SessionName(profileID string) string {
	return string(p) + profileID
}

// authenticatedProfile wires the session mock so profile 7 is paired on conn.
func authenticatedProfile(sessions *mockSessions, conn types.Connection) *models.Profile {
	profile := &models.Profile{ID: 7, Name: "Support", WebhookURL: "https://hooks.example.com/7", EnableWebhook: true}
	sessions.On("EnsureAuthenticated", mock.Anything, "7", profile.WebhookURL, true).Return(nil)
	sessions.On("Connection", "7").Return(conn, true)
	return profile
}
