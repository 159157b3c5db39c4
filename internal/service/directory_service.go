package service

import (
	"context"
	"errors"
	"time"

	"waprofiles/internal/constants"
	apperrors "waprofiles/internal/errors"
	"waprofiles/internal/metrics"
	"waprofiles/internal/models"
	"waprofiles/pkg/circuitbreaker"
	"waprofiles/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// DirectoryService lists the contacts and groups of an authenticated profile.
type DirectoryService struct {
	sessions     SessionManager
	breakers     *circuitbreaker.Group
	queryTimeout time.Duration
	logger       *logrus.Logger
}

// NewDirectoryService builds the directory façade. Provider queries are
// bounded by queryTimeout and guarded by one circuit breaker per profile.
func NewDirectoryService(sessions SessionManager, queryTimeout time.Duration, logger *logrus.Logger) *DirectoryService {
	if queryTimeout <= 0 {
		queryTimeout = time.Duration(constants.DefaultQueryTimeoutMs) * time.Millisecond
	}
	breakers := circuitbreaker.NewGroup("directory", circuitbreaker.Settings{
		MaxFailures: constants.DefaultBreakerMaxFailures,
		OpenTimeout: time.Duration(constants.DefaultBreakerOpenSec) * time.Second,
		// Slow answers are reported as query timeouts, not provider outages.
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
		},
	}, logger)
	return &DirectoryService{
		sessions:     sessions,
		breakers:     breakers,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// ListContacts returns the profile's address book.
func (s *DirectoryService) ListContacts(ctx context.Context, profile *models.Profile) ([]models.Contact, error) {
	conn, err := authenticatedConnection(ctx, s.sessions, profile)
	if err != nil {
		return nil, err
	}

	raw, err := runQuery(ctx, s, profile.SessionKey(), "contacts", conn.GetContacts)
	if err != nil {
		return nil, err
	}

	contacts := make([]models.Contact, 0, len(raw))
	for i := range raw {
		c := &raw[i]
		contacts = append(contacts, models.Contact{
			ID:          c.ID,
			Name:        c.GetDisplayName(),
			Number:      c.Number,
			IsGroup:     c.IsGroup,
			IsWAContact: c.IsWAContact,
		})
	}
	return contacts, nil
}

// ListGroups returns the group chats the profile takes part in.
func (s *DirectoryService) ListGroups(ctx context.Context, profile *models.Profile) ([]models.Group, error) {
	conn, err := authenticatedConnection(ctx, s.sessions, profile)
	if err != nil {
		return nil, err
	}

	chats, err := runQuery(ctx, s, profile.SessionKey(), "groups", conn.GetChats)
	if err != nil {
		return nil, err
	}

	groups := make([]models.Group, 0)
	for i := range chats {
		chat := &chats[i]
		if !chat.IsGroupChat() {
			continue
		}
		groups = append(groups, models.Group{
			ID:           chat.ID.String(),
			Name:         chat.Name,
			Participants: chat.Participants(),
			IsGroup:      true,
		})
	}
	return groups, nil
}

type queryResult[T any] struct {
	value T
	err   error
}

// runQuery calls the provider through the profile's breaker and gives up
// after the query timeout even when the provider ignores cancellation.
func runQuery[T any](ctx context.Context, s *DirectoryService, profileID, query string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan queryResult[T], 1)
	go func() {
		var value T
		err := s.breakers.Execute(qctx, profileID, func(ctx context.Context) error {
			var err error
			value, err = call(ctx)
			return err
		})
		done <- queryResult[T]{value: value, err: err}
	}()

	labels := map[string]string{"query": query}
	var res queryResult[T]
	select {
	case res = <-done:
	case <-qctx.Done():
		res = queryResult[T]{err: qctx.Err()}
	}
	metrics.RecordTimer("directory_query_duration", time.Since(start), labels, "Directory query latency")

	if res.err == nil {
		profileLogger(s.logger, "directory", profileID).WithFields(logrus.Fields{
			LogFieldQuery: query,
			LogFieldCount: countOf(res.value),
		}).Debug("Directory query completed")
		return res.value, nil
	}

	metrics.IncrementCounter("directory_query_failures_total", labels, "Failed directory queries")
	if errors.Is(qctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		appErr := apperrors.NewQueryTimeoutError(profileID, query, s.queryTimeout)
		profileLogger(s.logger, "directory", profileID).WithField(LogFieldQuery, query).Warn("Directory query timed out")
		return zero, appErr
	}
	if ctx.Err() != nil {
		return zero, apperrors.WrapRetryable(ctx.Err(), apperrors.ErrCodeTimeout, "request cancelled").
			WithUserMessage("Request timed out, please try again")
	}
	profileLogger(s.logger, "directory", profileID).WithError(res.err).WithField(LogFieldQuery, query).Error("Failed to query provider directory")
	return zero, apperrors.NewProviderError(profileID, query, res.err)
}

func countOf(value interface{}) int {
	switch v := value.(type) {
	case []types.Contact:
		return len(v)
	case []types.Chat:
		return len(v)
	default:
		return 0
	}
}
