package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"waprofiles/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// connection is one WAHA session seen as a types.Connection. WAHA events reach
// it through Provider.HandleEvent and are re-emitted on the events channel.
type connection struct {
	provider      *Provider
	name          string
	events        chan types.Event
	authenticated atomic.Bool
	// live is set once the session reported a running status; a STOPPED
	// status seen before that belongs to a previous incarnation.
	live atomic.Bool
	// startedAt is the unix millisecond time Start was called.
	startedAt atomic.Int64

	// mu guards closed and the events channel; emitters hold the read lock
	// while sending so close never races a send.
	mu     sync.RWMutex
	closed bool

	qrMu   sync.Mutex
	qrStop chan struct{}
	lastQR string
}

func newConnection(p *Provider, name string, buffer int) *connection {
	return &connection{
		provider: p,
		name:     name,
		events:   make(chan types.Event, buffer),
	}
}

func (c *connection) log() *logrus.Entry {
	return c.provider.logger.WithField("session", c.name)
}

func (c *connection) Events() <-chan types.Event {
	return c.events
}

func (c *connection) IsAuthenticated() bool {
	return c.authenticated.Load()
}

// Start creates the WAHA session, or starts it when it already exists, then
// syncs the current status so a session restored from stored credentials
// reports ready without waiting for an event.
func (c *connection) Start(ctx context.Context) error {
	c.startedAt.Store(time.Now().UnixMilli())
	sessions := c.provider.sessions

	_, err := sessions.Create(ctx, types.CreateSessionRequest{
		Name:   c.name,
		Start:  true,
		Config: c.provider.sessionConfig(),
	})
	switch {
	case errors.Is(err, ErrSessionExists):
		if startErr := sessions.Start(ctx, c.name); startErr != nil && !isAlreadyStarted(startErr) {
			return startErr
		}
	case err != nil:
		return err
	}

	current, err := sessions.Get(ctx, c.name)
	if err != nil {
		c.log().WithError(err).Debug("Could not read session status after start")
		return nil
	}
	c.applyStatus(ctx, current.Status)
	return nil
}

// predates reports whether a WAHA event timestamp is older than this run.
func (c *connection) predates(eventMillis int64) bool {
	started := c.startedAt.Load()
	return eventMillis > 0 && started > 0 && eventMillis < started
}

func isAlreadyStarted(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity
}

func (c *connection) applyStatus(ctx context.Context, status string) {
	c.log().WithField("status", status).Debug("Session status changed")

	switch status {
	case types.WAHAStatusStarting:
		c.live.Store(true)
	case types.WAHAStatusScanQRCode:
		c.live.Store(true)
		c.authenticated.Store(false)
		c.refreshQR(ctx)
		c.startQRRefresh()
	case types.WAHAStatusWorking:
		c.live.Store(true)
		c.stopQRRefresh()
		c.authenticated.Store(true)
		c.emit(types.Event{Kind: types.EventReady})
	case types.WAHAStatusFailed:
		c.stopQRRefresh()
		c.authenticated.Store(false)
		c.emit(types.Event{Kind: types.EventAuthFailure, Reason: "session failed"})
	case types.WAHAStatusStopped:
		if !c.live.Load() {
			c.log().Debug("Ignoring stop of a previous session run")
			return
		}
		c.stopQRRefresh()
		c.authenticated.Store(false)
		c.emit(types.Event{Kind: types.EventDisconnected, Reason: "session stopped"})
	}
}

// refreshQR fetches the current pairing code and emits it when it changed.
func (c *connection) refreshQR(ctx context.Context) {
	code, err := c.provider.api.getQRValue(ctx, c.name)
	if err != nil {
		c.log().WithError(err).Warn("Failed to fetch pairing code")
		return
	}

	c.qrMu.Lock()
	changed := code != c.lastQR
	c.lastQR = code
	c.qrMu.Unlock()

	if changed {
		c.emit(types.Event{Kind: types.EventPairingCode, Code: code})
	}
}

// WAHA rotates the QR without a new status event, so poll it while pairing.
func (c *connection) startQRRefresh() {
	c.qrMu.Lock()
	defer c.qrMu.Unlock()
	if c.qrStop != nil || c.provider.qrRefresh <= 0 {
		return
	}
	stop := make(chan struct{})
	c.qrStop = stop

	go func() {
		ticker := time.NewTicker(c.provider.qrRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), c.provider.api.client.Timeout)
				c.refreshQR(ctx)
				cancel()
			}
		}
	}()
}

func (c *connection) stopQRRefresh() {
	c.qrMu.Lock()
	defer c.qrMu.Unlock()
	if c.qrStop != nil {
		close(c.qrStop)
		c.qrStop = nil
	}
	c.lastQR = ""
}

func (c *connection) emit(event types.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	c.events <- event
}

func (c *connection) SendText(ctx context.Context, chatID, text string) (*types.SentMessage, error) {
	return c.provider.api.sendText(ctx, c.name, chatID, text)
}

func (c *connection) GetContacts(ctx context.Context) ([]types.Contact, error) {
	return c.provider.api.getContacts(ctx, c.name)
}

func (c *connection) GetChats(ctx context.Context) ([]types.Chat, error) {
	return c.provider.api.getChats(ctx, c.name)
}

func (c *connection) Logout(ctx context.Context) error {
	if err := c.provider.sessions.Logout(ctx, c.name); err != nil {
		return err
	}
	c.authenticated.Store(false)
	return nil
}

// Destroy stops the WAHA session and closes the events channel. Stored
// credentials stay in WAHA so the next Start can restore them.
func (c *connection) Destroy(ctx context.Context) error {
	c.mu.RLock()
	alreadyClosed := c.closed
	c.mu.RUnlock()
	if alreadyClosed {
		return nil
	}

	c.stopQRRefresh()
	err := c.provider.sessions.Stop(ctx, c.name)
	if err == nil {
		c.provider.expectStop(c.name)
	}

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	c.mu.Unlock()

	c.authenticated.Store(false)
	c.provider.release(c)
	return err
}

func (c *connection) Ping(ctx context.Context) error {
	session, err := c.provider.sessions.Get(ctx, c.name)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return types.ErrSessionGone
		}
		return err
	}
	switch session.Status {
	case types.WAHAStatusStopped, types.WAHAStatusFailed:
		return types.ErrSessionGone
	}
	return nil
}
