package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"waprofiles/pkg/whatsapp/types"
)

// ErrSessionExists is returned by Create when WAHA already knows the session.
var ErrSessionExists = errors.New("session already exists")

type sessionManager struct {
	api *apiClient
}

// NewSessionManager creates a WAHA session manager
func NewSessionManager(api *apiClient) types.SessionManager {
	return &sessionManager{api: api}
}

func sessionPath(name, action string) string {
	return fmt.Sprintf("%s%s/%s%s", types.APIBase, types.EndpointSessions, url.PathEscape(name), action)
}

func (sm *sessionManager) Create(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error) {
	var session types.Session
	err := sm.api.do(ctx, http.MethodPost, types.APIBase+types.EndpointSessions, nil, req, &session)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusConflict || apiErr.StatusCode == http.StatusUnprocessableEntity) {
			return nil, ErrSessionExists
		}
		return nil, fmt.Errorf("failed to create session %s: %w", req.Name, err)
	}
	if session.Name == "" {
		session.Name = req.Name
	}
	return &session, nil
}

func (sm *sessionManager) Get(ctx context.Context, name string) (*types.Session, error) {
	var session types.Session
	if err := sm.api.do(ctx, http.MethodGet, sessionPath(name, ""), nil, nil, &session); err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", name, err)
	}
	return &session, nil
}

func (sm *sessionManager) Start(ctx context.Context, name string) error {
	if err := sm.api.do(ctx, http.MethodPost, sessionPath(name, types.ActionStart), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to start session %s: %w", name, err)
	}
	return nil
}

func (sm *sessionManager) Stop(ctx context.Context, name string) error {
	if err := sm.api.do(ctx, http.MethodPost, sessionPath(name, types.ActionStop), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to stop session %s: %w", name, err)
	}
	return nil
}

func (sm *sessionManager) Logout(ctx context.Context, name string) error {
	if err := sm.api.do(ctx, http.MethodPost, sessionPath(name, types.ActionLogout), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to logout session %s: %w", name, err)
	}
	return nil
}
