package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"waprofiles/pkg/constants"
	"waprofiles/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// ErrUnknownSession is returned when an event names a session no connection owns.
var ErrUnknownSession = errors.New("unknown session")

// Provider implements types.Provider on top of a WAHA server. Each profile maps
// to one WAHA session named <prefix><profileID>.
type Provider struct {
	api         *apiClient
	sessions    types.SessionManager
	events      WebhookHandler
	cfg         types.ClientConfig
	logger      *logrus.Logger
	qrRefresh   time.Duration
	connections map[string]*connection

	// pendingStops holds session names whose run this process stopped and
	// whose STOPPED webhook has not arrived yet.
	pendingStops map[string]time.Time
	staleWindow  time.Duration
	mu           sync.RWMutex
}

// NewProvider creates a WAHA-backed provider.
func NewProvider(cfg types.ClientConfig, logger *logrus.Logger) *Provider {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.SessionPrefix == "" {
		cfg.SessionPrefix = constants.DefaultSessionPrefix
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = constants.DefaultEventBufferSize
	}
	if cfg.EventTransport == "" {
		cfg.EventTransport = types.TransportWebhook
	}

	api := newAPIClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	p := &Provider{
		api:          api,
		sessions:     NewSessionManager(api),
		events:       NewWebhookHandler(),
		cfg:          cfg,
		logger:       logger,
		qrRefresh:    time.Duration(constants.DefaultQRRefreshSec) * time.Second,
		connections:  make(map[string]*connection),
		pendingStops: make(map[string]time.Time),
		staleWindow:  time.Duration(constants.DefaultStaleStopWindowSec) * time.Second,
	}
	p.events.RegisterEventHandler(types.WAHAEventSessionStatus, p.handleSessionStatus)
	p.events.RegisterEventHandler(types.WAHAEventMessage, p.handleMessage)
	return p
}

// SessionName returns the WAHA session name that stores a profile's credentials.
func (p *Provider) SessionName(profileID string) string {
	return p.cfg.SessionPrefix + profileID
}

// Connect builds an unstarted connection for the profile. A previous connection
// for the same session name stops receiving events.
func (p *Provider) Connect(ctx context.Context, profileID string) (types.Connection, error) {
	if profileID == "" {
		return nil, fmt.Errorf("profile id is required")
	}
	name := p.SessionName(profileID)
	if len(name) > constants.MaxSessionNameLength {
		return nil, fmt.Errorf("session name too long: %d characters", len(name))
	}

	conn := newConnection(p, name, p.cfg.EventBuffer)

	p.mu.Lock()
	p.connections[name] = conn
	p.mu.Unlock()

	return conn, nil
}

func (p *Provider) release(c *connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.connections[c.name]; ok && current == c {
		delete(p.connections, c.name)
	}
}

// expectStop records that the run of name was stopped here, so the STOPPED
// webhook it produces is not applied to a later run.
func (p *Provider) expectStop(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingStops[name] = time.Now()
}

// takeExpectedStop consumes a pending stop for name recorded within the
// stale window.
func (p *Provider) takeExpectedStop(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	stoppedAt, ok := p.pendingStops[name]
	if !ok {
		return false
	}
	delete(p.pendingStops, name)
	return time.Since(stoppedAt) <= p.staleWindow
}

func (p *Provider) lookup(name string) (*connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.connections[name]
	return conn, ok
}

// HandleEvent dispatches one WAHA event to the connection owning its session.
func (p *Provider) HandleEvent(ctx context.Context, event *types.WebhookEvent) error {
	if event == nil {
		return fmt.Errorf("nil event")
	}
	return p.events.Handle(ctx, event)
}

// HandleWebhook decodes a raw WAHA webhook body and dispatches it.
func (p *Provider) HandleWebhook(ctx context.Context, body []byte) error {
	var event types.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to decode webhook event: %w", err)
	}
	return p.HandleEvent(ctx, &event)
}

func (p *Provider) handleSessionStatus(ctx context.Context, event *types.WebhookEvent) error {
	var status types.SessionStatusPayload
	if err := json.Unmarshal(event.Payload, &status); err != nil {
		return fmt.Errorf("failed to unmarshal session status payload: %w", err)
	}
	name := event.Session
	if name == "" {
		name = status.Name
	}

	conn, ok := p.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, name)
	}
	if status.Status == types.WAHAStatusStopped && (conn.predates(event.Timestamp) || p.takeExpectedStop(name)) {
		conn.log().Debug("Ignoring STOPPED from a previous session run")
		return nil
	}
	conn.applyStatus(ctx, status.Status)
	return nil
}

func (p *Provider) handleMessage(ctx context.Context, event *types.WebhookEvent) error {
	var msg types.MessagePayload
	if err := json.Unmarshal(event.Payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal message payload: %w", err)
	}

	conn, ok := p.lookup(event.Session)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, event.Session)
	}
	if msg.FromMe {
		return nil
	}

	ts := time.Now().UTC()
	if msg.Timestamp > 0 {
		ts = time.Unix(msg.Timestamp, 0).UTC()
	}
	conn.emit(types.Event{
		Kind: types.EventMessage,
		Message: &types.InboundMessage{
			ID:        msg.ID,
			From:      msg.From,
			To:        msg.To,
			Body:      msg.Body,
			Timestamp: ts,
		},
	})
	return nil
}

func (p *Provider) sessionConfig() *types.SessionConfig {
	if p.cfg.EventTransport != types.TransportWebhook || p.cfg.PublicWebhookURL == "" {
		return nil
	}
	hook := types.WebhookConfig{
		URL:    p.cfg.PublicWebhookURL,
		Events: []string{types.WAHAEventSessionStatus, types.WAHAEventMessage},
	}
	if p.cfg.WebhookSecret != "" {
		hook.HMAC = &types.WebhookHMAC{Key: p.cfg.WebhookSecret}
	}
	return &types.SessionConfig{Webhooks: []types.WebhookConfig{hook}}
}
