package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"waprofiles/internal/models"
	"waprofiles/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// fakeProvider hands out fakeConns configured by its fields.
type fakeProvider struct {
	mu         sync.Mutex
	connects   int
	conns      []*fakeConn
	connectErr error
	startErr   error
	destroyErr error
	logoutErr  error
	onStart    func(c *fakeConn)
}

func (p *fakeProvider) Connect(_ context.Context, profileID string) (types.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	c := &fakeConn{
		profileID:  profileID,
		events:     make(chan types.Event, 16),
		onStart:    p.onStart,
		startErr:   p.startErr,
		destroyErr: p.destroyErr,
		logoutErr:  p.logoutErr,
	}
	p.conns = append(p.conns, c)
	return c, nil
}

func (p *fakeProvider) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

func (p *fakeProvider) last() *fakeConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) == 0 {
		return nil
	}
	return p.conns[len(p.conns)-1]
}

type fakeConn struct {
	profileID string
	events    chan types.Event
	onStart   func(c *fakeConn)

	startErr   error
	destroyErr error
	logoutErr  error
	pingErr    atomic.Value

	authenticated atomic.Bool
	starts        atomic.Int32
	destroys      atomic.Int32
	logouts       atomic.Int32

	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Events() <-chan types.Event { return c.events }

func (c *fakeConn) Start(context.Context) error {
	c.starts.Add(1)
	if c.startErr != nil {
		return c.startErr
	}
	if c.onStart != nil {
		c.onStart(c)
	}
	return nil
}

func (c *fakeConn) IsAuthenticated() bool { return c.authenticated.Load() }

func (c *fakeConn) SendText(context.Context, string, string) (*types.SentMessage, error) {
	return &types.SentMessage{ID: "msg-1", Timestamp: 1}, nil
}

func (c *fakeConn) GetContacts(context.Context) ([]types.Contact, error) { return nil, nil }

func (c *fakeConn) GetChats(context.Context) ([]types.Chat, error) { return nil, nil }

func (c *fakeConn) Logout(context.Context) error {
	c.logouts.Add(1)
	if c.logoutErr != nil {
		return c.logoutErr
	}
	c.authenticated.Store(false)
	return nil
}

func (c *fakeConn) Destroy(context.Context) error {
	c.destroys.Add(1)
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	c.mu.Unlock()
	c.authenticated.Store(false)
	return c.destroyErr
}

func (c *fakeConn) Ping(context.Context) error {
	if err, ok := c.pingErr.Load().(error); ok && err != nil {
		return err
	}
	return nil
}

func (c *fakeConn) emit(ev types.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- ev
}

func (c *fakeConn) emitCode(code string) {
	c.authenticated.Store(false)
	c.emit(types.Event{Kind: types.EventPairingCode, Code: code})
}

func (c *fakeConn) emitReady() {
	c.authenticated.Store(true)
	c.emit(types.Event{Kind: types.EventReady})
}

func (c *fakeConn) emitMessage(from, body string) {
	c.emit(types.Event{Kind: types.EventMessage, Message: &types.InboundMessage{
		ID:        "in-1",
		From:      from,
		To:        "15550000000@c.us",
		Body:      body,
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}})
}

var errFake = errors.New("provider exploded")

type delivery struct {
	url      string
	envelope models.RelayEnvelope
}

// recordingDeliverer captures every relay delivery.
type recordingDeliverer struct {
	mu         sync.Mutex
	deliveries []delivery
	err        error
}

func (d *recordingDeliverer) Deliver(_ context.Context, url string, env models.RelayEnvelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, delivery{url: url, envelope: env})
	return d.err
}

func (d *recordingDeliverer) all() []delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivery(nil), d.deliveries...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() Config {
	return Config{
		InitTimeout:     200 * time.Millisecond,
		PollInterval:    10 * time.Millisecond,
		PollAttempts:    5,
		TeardownTimeout: time.Second,
	}
}

func newTestManager(t *testing.T, provider *fakeProvider, cfg Config) (*Manager, *recordingDeliverer) {
	t.Helper()
	logger := quietLogger()
	deliverer := &recordingDeliverer{}
	relay := NewRelay(deliverer, logger, time.Second)
	m := NewManager(provider, NewRegistry(), relay, cfg, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, deliverer
}

func typesDisconnected(reason string) types.Event {
	return types.Event{Kind: types.EventDisconnected, Reason: reason}
}

func typesAuthFailure(reason string) types.Event {
	return types.Event{Kind: types.EventAuthFailure, Reason: reason}
}
