package service

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "waprofiles/internal/errors"
	"waprofiles/internal/models"
	"waprofiles/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestListContacts_MapsFields(t *testing.T) {
	sessions := new(mockSessions)
	conn := new(mockConnection)
	profile := authenticatedProfile(sessions, conn)

	conn.On("GetContacts", mock.Anything).Return([]types.Contact{
		{ID: "1@c.us", Number: "1", Name: "Alice", IsWAContact: true},
		{ID: "2@c.us", Number: "2", PushName: "bob"},
		{ID: "3@c.us", Number: "3"},
	}, nil)

	svc := NewDirectoryService(sessions, time.Second, quietLogger())
	contacts, err := svc.ListContacts(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, []models.Contact{
		{ID: "1@c.us", Name: "Alice", Number: "1", IsWAContact: true},
		{ID: "2@c.us", Name: "bob", Number: "2"},
		{ID: "3@c.us", Name: "Unknown", Number: "3"},
	}, contacts)
}

func TestListGroups_FiltersGroupChats(t *testing.T) {
	sessions := new(mockSessions)
	conn := new(mockConnection)
	profile := authenticatedProfile(sessions, conn)

	conn.On("GetChats", mock.Anything).Return([]types.Chat{
		{ID: "1@c.us", Name: "Alice"},
		{ID: "120@g.us", Name: "Team", GroupMetadata: &types.GroupMetadata{
			Participants: []types.GroupParticipant{{ID: "1@c.us"}, {ID: "2@c.us"}},
		}},
		{ID: "121", Name: "Flagged", IsGroup: true, ParticipantCount: 5},
	}, nil)

	svc := NewDirectoryService(sessions, time.Second, quietLogger())
	groups, err := svc.ListGroups(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, []models.Group{
		{ID: "120@g.us", Name: "Team", Participants: 2, IsGroup: true},
		{ID: "121", Name: "Flagged", Participants: 5, IsGroup: true},
	}, groups)
}

func TestListGroups_EmptyIsNotNil(t *testing.T) {
	sessions := new(mockSessions)
	conn := new(mockConnection)
	profile := authenticatedProfile(sessions, conn)
	conn.On("GetChats", mock.Anything).Return([]types.Chat{}, nil)

	svc := NewDirectoryService(sessions, time.Second, quietLogger())
	groups, err := svc.ListGroups(context.Background(), profile)
	require.NoError(t, err)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestListContacts_QueryTimeout(t *testing.T) {
	sessions := new(mockSessions)
	conn := new(mockConnection)
	profile := authenticatedProfile(sessions, conn)

	release := make(chan struct{})
	defer close(release)
	conn.On("GetContacts", mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return([]types.Contact{}, nil)

	svc := NewDirectoryService(sessions, 30*time.Millisecond, quietLogger())
	start := time.Now()
	_, err := svc.ListContacts(context.Background(), profile)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeQueryTimeout))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestListContacts_ProviderError(t *testing.T) {
	sessions := new(mockSessions)
	conn := new(mockConnection)
	profile := authenticatedProfile(sessions, conn)
	conn.On("GetContacts", mock.Anything).Return(nil, errors.New("engine crashed"))

	svc := NewDirectoryService(sessions, time.Second, quietLogger())
	_, err := svc.ListContacts(context.Background(), profile)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProvider))
	assert.Equal(t, "engine crashed", apperrors.GetUserMessage(err))
}

func TestListContacts_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	sessions := new(mockSessions)
	conn := new(mockConnection)
	profile := authenticatedProfile(sessions, conn)
	conn.On("GetContacts", mock.Anything).Return(nil, errors.New("engine crashed"))

	svc := NewDirectoryService(sessions, time.Second, quietLogger())
	for i := 0; i < 5; i++ {
		_, err := svc.ListContacts(context.Background(), profile)
		require.Error(t, err)
	}
	conn.AssertNumberOfCalls(t, "GetContacts", 5)

	_, err := svc.ListContacts(context.Background(), profile)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProvider))
	assert.Contains(t, err.Error(), "circuit breaker")
	conn.AssertNumberOfCalls(t, "GetContacts", 5)
}

func TestListContacts_NotAuthenticated(t *testing.T) {
	sessions := new(mockSessions)
	profile := &models.Profile{ID: 9}
	sessions.On("EnsureAuthenticated", mock.Anything, "9", "", false).
		Return(apperrors.NewNotAuthenticatedError("9"))

	svc := NewDirectoryService(sessions, time.Second, quietLogger())
	_, err := svc.ListContacts(context.Background(), profile)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotAuthenticated))
}
