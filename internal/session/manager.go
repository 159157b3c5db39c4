package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "waprofiles/internal/errors"
	"waprofiles/internal/metrics"
	"waprofiles/internal/models"
	"waprofiles/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultInitTimeout     = 30 * time.Second
	defaultPollInterval    = time.Second
	defaultPollAttempts    = 10
	defaultTeardownTimeout = 15 * time.Second
	shutdownParallelism    = 8
)

// Config bounds every wait the Manager performs.
type Config struct {
	// InitTimeout is the hard ceiling on the startup race.
	InitTimeout     time.Duration
	PollInterval    time.Duration
	PollAttempts    int
	TeardownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		InitTimeout:     defaultInitTimeout,
		PollInterval:    defaultPollInterval,
		PollAttempts:    defaultPollAttempts,
		TeardownTimeout: defaultTeardownTimeout,
	}
}

// ConfigFromModel converts the session section of the application config.
func ConfigFromModel(cfg models.SessionConfig) Config {
	return Config{
		InitTimeout:  cfg.InitTimeout(),
		PollInterval: cfg.PollInterval(),
		PollAttempts: cfg.PairingPollAttempts,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitTimeout <= 0 {
		c.InitTimeout = d.InitTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = d.PollAttempts
	}
	if c.TeardownTimeout <= 0 {
		c.TeardownTimeout = d.TeardownTimeout
	}
	return c
}

// InitResult describes how Initialize returned.
type InitResult struct {
	AlreadyInitialized bool
	Outcome            Outcome
	Code               string
}

// QRGenerated reports whether a pairing code won the startup race.
func (r InitResult) QRGenerated() bool {
	return r.Outcome == OutcomePairingCode
}

// Manager owns one provider connection per profile. Every operation on the
// same profile id is serialized; different ids run in parallel.
type Manager struct {
	provider types.Provider
	registry *Registry
	relay    *Relay
	locks    *keyedMutex
	logger   *logrus.Logger
	errLog   *apperrors.Logger

	cfgMu sync.RWMutex
	cfg   Config

	loops sync.WaitGroup
}

func NewManager(provider types.Provider, registry *Registry, relay *Relay, cfg Config, logger *logrus.Logger) *Manager {
	return &Manager{
		provider: provider,
		registry: registry,
		relay:    relay,
		locks:    newKeyedMutex(),
		logger:   logger,
		errLog:   apperrors.WrapLogger(logger),
		cfg:      cfg.withDefaults(),
	}
}

func (m *Manager) config() Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// UpdateConfig swaps the timing parameters used by subsequent operations.
func (m *Manager) UpdateConfig(cfg Config) {
	m.cfgMu.Lock()
	m.cfg = cfg.withDefaults()
	m.cfgMu.Unlock()
}

// Initialize starts a session for profileID unless one already exists. It
// returns on the first of ready, pairing code, failure, InitTimeout or ctx.
// Expiry of the ceiling is not an error: the connection keeps starting in the
// background and stays registered.
func (m *Manager) Initialize(ctx context.Context, profileID, webhookURL string, webhookEnabled bool) (InitResult, error) {
	unlock := m.locks.Lock(profileID)
	defer unlock()
	return m.initializeLocked(ctx, profileID, webhookURL, webhookEnabled, m.config().InitTimeout)
}

func (m *Manager) initializeLocked(ctx context.Context, profileID, webhookURL string, webhookEnabled bool, ceiling time.Duration) (InitResult, error) {
	if _, ok := m.registry.Get(profileID); ok {
		return InitResult{AlreadyInitialized: true}, nil
	}

	log := m.logger.WithField("profile_id", profileID)
	log.Info("Starting session")

	conn, err := m.provider.Connect(ctx, profileID)
	if err != nil {
		metrics.IncrementCounter("session_init_failures_total", nil, "Sessions that failed to start")
		return InitResult{}, apperrors.NewProviderInitError(profileID, err)
	}

	s := newSession(profileID, conn)
	m.registry.Put(profileID, s)
	m.loops.Add(1)
	go m.consume(s)
	m.relay.Bind(s, webhookURL, webhookEnabled)
	metrics.SetGauge("sessions_active", float64(m.registry.Len()), nil, "Registered sessions")

	// Start is detached from the caller so a caller timeout only bounds the wait.
	startCtx := context.WithoutCancel(ctx)
	go func() {
		if err := conn.Start(startCtx); err != nil {
			m.abandon(s, err)
		}
	}()

	start := time.Now()
	outcome, code, err := s.hs.race(ctx, ceiling)
	metrics.RecordTimer("session_init_duration", time.Since(start), map[string]string{"outcome": outcome.String()}, "Time until the startup race resolved")

	result := InitResult{Outcome: outcome, Code: code}
	switch {
	case outcome == OutcomeFailed:
		metrics.IncrementCounter("session_init_failures_total", nil, "Sessions that failed to start")
		if err == nil {
			err = errSessionEnded
		}
		return result, apperrors.NewProviderInitError(profileID, err)
	case err != nil:
		return result, apperrors.WrapRetryable(err, apperrors.ErrCodeTimeout, "session start wait interrupted").
			WithContext("profile_id", profileID).
			WithUserMessage("Operation timed out, please try again")
	}

	metrics.IncrementCounter("sessions_initialized_total", map[string]string{"outcome": outcome.String()}, "Sessions started")
	log.WithField("outcome", outcome.String()).Info("Session start race resolved")
	return result, nil
}

// abandon purges a session whose connection failed to start.
func (m *Manager) abandon(s *Session, cause error) {
	m.registry.RemoveIfCurrent(s.ProfileID, s)
	s.markStopped()
	m.relay.Detach(s)
	s.hs.signalFailure(cause)
	m.errLog.LogError(cause, "Failed to start session", logrus.Fields{"profile_id": s.ProfileID})
	m.teardown(s)
}

// teardown destroys the connection best-effort.
func (m *Manager) teardown(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config().TeardownTimeout)
	defer cancel()
	if err := s.conn.Destroy(ctx); err != nil {
		m.logger.WithField("profile_id", s.ProfileID).WithError(err).Warn("Failed to tear down connection")
	}
	metrics.SetGauge("sessions_active", float64(m.registry.Len()), nil, "Registered sessions")
}

// consume applies the connection's events until its channel closes. It never
// takes the per-id lock; registry writes are conditional on s still being the
// registered session.
func (m *Manager) consume(s *Session) {
	defer m.loops.Done()
	for ev := range s.conn.Events() {
		if s.Stopped() {
			continue
		}
		m.handleEvent(s, ev)
	}
	if m.registry.RemoveIfCurrent(s.ProfileID, s) {
		m.logger.WithField("profile_id", s.ProfileID).Warn("Connection closed, session purged")
	}
	s.markStopped()
	s.hs.signalFailure(errSessionEnded)
}

func (m *Manager) handleEvent(s *Session, ev types.Event) {
	log := m.logger.WithFields(logrus.Fields{
		"profile_id": s.ProfileID,
		"event":      ev.Kind.String(),
	})

	switch ev.Kind {
	case types.EventPairingCode:
		if ev.Code == "" {
			return
		}
		if !m.registry.SetCodeFor(s.ProfileID, s, ev.Code) {
			return
		}
		s.setState(StateAwaitingPairing)
		s.hs.signalCode(ev.Code)
		log.Info("Pairing code issued")
	case types.EventReady:
		m.registry.ClearCodeFor(s.ProfileID, s)
		s.setState(StateAuthenticated)
		s.hs.signalReady()
		log.Info("Session authenticated")
	case types.EventDisconnected, types.EventAuthFailure:
		m.HandleDisconnect(s, fmt.Sprintf("%s: %s", ev.Kind, ev.Reason))
	case types.EventMessage:
		if ev.Message == nil {
			return
		}
		if listener := s.currentListener(); listener != nil {
			listener(*ev.Message)
		}
	default:
		log.Debug("Ignoring unknown session event")
	}
}

// HandleDisconnect purges s after an unsolicited disconnect. It is a no-op on
// the registry when the entry for s.ProfileID has already moved on.
func (m *Manager) HandleDisconnect(s *Session, reason string) {
	removed := m.registry.RemoveIfCurrent(s.ProfileID, s)
	s.markStopped()
	m.relay.Detach(s)
	s.hs.signalFailure(fmt.Errorf("%w (%s)", errSessionEnded, reason))
	if !removed {
		return
	}

	metrics.IncrementCounter("session_disconnects_total", nil, "Sessions purged after a provider disconnect")
	m.logger.WithFields(logrus.Fields{
		"profile_id": s.ProfileID,
		"reason":     reason,
	}).Warn("Session disconnected, purged from registry")
	// Destroy closes the event channel this goroutine may be draining.
	go m.teardown(s)
}

// GetSession is a pure lookup.
func (m *Manager) GetSession(profileID string) (*Session, bool) {
	return m.registry.Get(profileID)
}

// IsAuthenticated is true only when a session exists, the provider reports it
// authenticated and no pairing code is cached.
func (m *Manager) IsAuthenticated(profileID string) bool {
	s, ok := m.registry.Get(profileID)
	if !ok || !s.conn.IsAuthenticated() {
		return false
	}
	_, hasCode := m.registry.GetCode(profileID)
	return !hasCode
}

// Connection returns the live provider handle of a profile.
func (m *Manager) Connection(profileID string) (types.Connection, bool) {
	s, ok := m.registry.Get(profileID)
	if !ok {
		return nil, false
	}
	return s.conn, true
}

func (m *Manager) GetPairingCode(profileID string) (string, bool) {
	return m.registry.GetCode(profileID)
}

// Status reports the state of the registered session, if any.
func (m *Manager) Status(profileID string) (State, bool) {
	s, ok := m.registry.Get(profileID)
	if !ok {
		return StateDisconnected, false
	}
	return s.State(), true
}

// Destroy tears the connection down and always purges the registry entry,
// even when teardown fails.
func (m *Manager) Destroy(ctx context.Context, profileID string) error {
	unlock := m.locks.Lock(profileID)
	defer unlock()
	return m.destroyLocked(ctx, profileID)
}

func (m *Manager) destroyLocked(ctx context.Context, profileID string) error {
	s, ok := m.registry.Get(profileID)
	if !ok {
		return apperrors.NewSessionNotFoundError(profileID)
	}

	s.markStopped()
	m.relay.Detach(s)

	var teardownErr error
	func() {
		defer m.registry.Remove(profileID)
		teardownErr = s.conn.Destroy(ctx)
	}()
	s.hs.signalFailure(errSessionEnded)
	metrics.SetGauge("sessions_active", float64(m.registry.Len()), nil, "Registered sessions")

	if teardownErr != nil {
		appErr := apperrors.NewProviderError(profileID, "destroy", teardownErr)
		m.errLog.LogError(appErr, "Session teardown failed, entry purged")
		return appErr
	}
	m.logger.WithField("profile_id", profileID).Info("Session destroyed")
	return nil
}

// Logout unlinks an authenticated account and destroys the session. A
// session that is still pairing is left untouched.
func (m *Manager) Logout(ctx context.Context, profileID string) error {
	unlock := m.locks.Lock(profileID)
	defer unlock()

	s, ok := m.registry.Get(profileID)
	if !ok {
		return apperrors.NewSessionNotFoundError(profileID)
	}
	if !m.IsAuthenticated(profileID) {
		return apperrors.NewNotAuthenticatedError(profileID)
	}

	if err := s.conn.Logout(ctx); err != nil {
		appErr := apperrors.NewProviderError(profileID, "logout", err)
		m.errLog.LogError(appErr, "Failed to log out session")
		return appErr
	}

	err := m.destroyLocked(ctx, profileID)
	if err != nil && !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		return err
	}
	m.logger.WithField("profile_id", profileID).Info("Session logged out")
	return nil
}

// AcquirePairingCode returns a pairing code for an unauthenticated profile,
// starting a fresh session when none is cached. A session without a cached
// code is destroyed and recreated so a new code gets issued.
func (m *Manager) AcquirePairingCode(ctx context.Context, profileID, webhookURL string, webhookEnabled bool) (string, error) {
	unlock := m.locks.Lock(profileID)
	defer unlock()

	if m.IsAuthenticated(profileID) {
		return "", apperrors.NewAlreadyAuthenticatedError(profileID)
	}
	if code, ok := m.registry.GetCode(profileID); ok {
		return code, nil
	}

	if _, ok := m.registry.Get(profileID); ok {
		m.logger.WithField("profile_id", profileID).Info("Recreating session without pairing code")
		if err := m.destroyLocked(ctx, profileID); err != nil && !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			m.errLog.LogWarn(err, "Continuing after failed teardown")
		}
	}

	// The startup race gets one poll interval; the bounded poll below owns the
	// rest of the wait so PAIRING_TIMEOUT fits inside the QR request ceiling.
	cfg := m.config()
	result, err := m.initializeLocked(ctx, profileID, webhookURL, webhookEnabled, min(cfg.InitTimeout, cfg.PollInterval))
	if err != nil {
		return "", err
	}
	switch result.Outcome {
	case OutcomeReady:
		return "", apperrors.NewAlreadyAuthenticatedError(profileID)
	case OutcomePairingCode:
		if code, ok := m.registry.GetCode(profileID); ok {
			return code, nil
		}
		return result.Code, nil
	}

	s, ok := m.registry.Get(profileID)
	if !ok {
		return "", apperrors.NewProviderError(profileID, "pairing", errSessionEnded)
	}
	code, err := pollPairingCode(ctx, m.registry, s, cfg.PollInterval, cfg.PollAttempts)
	if apperrors.HasCode(err, apperrors.ErrCodePairingTimeout) {
		metrics.IncrementCounter("pairing_timeouts_total", nil, "Pairing code polls that ran out of attempts")
	}
	return code, err
}

// Rebind swaps the relay listener of a live session without restarting it.
func (m *Manager) Rebind(profileID, webhookURL string, webhookEnabled bool) error {
	unlock := m.locks.Lock(profileID)
	defer unlock()

	s, ok := m.registry.Get(profileID)
	if !ok {
		return apperrors.NewSessionNotFoundError(profileID)
	}
	m.relay.Bind(s, webhookURL, webhookEnabled)
	m.logger.WithFields(logrus.Fields{
		"profile_id":      profileID,
		"webhook_enabled": webhookEnabled && webhookURL != "",
	}).Info("Relay rebound")
	return nil
}

// EnsureAuthenticated lazily starts a missing session and fails with
// NOT_AUTHENTICATED when the profile still is not paired afterwards.
func (m *Manager) EnsureAuthenticated(ctx context.Context, profileID, webhookURL string, webhookEnabled bool) error {
	if m.IsAuthenticated(profileID) {
		return nil
	}

	unlock := m.locks.Lock(profileID)
	defer unlock()

	if _, ok := m.registry.Get(profileID); !ok {
		if _, err := m.initializeLocked(ctx, profileID, webhookURL, webhookEnabled, m.config().InitTimeout); err != nil {
			return err
		}
	}
	if !m.IsAuthenticated(profileID) {
		return apperrors.NewNotAuthenticatedError(profileID)
	}
	return nil
}

// Shutdown destroys every registered session and waits for event loops and
// in-flight relay deliveries.
func (m *Manager) Shutdown(ctx context.Context) error {
	ids := m.registry.IDs()
	m.logger.WithField("count", len(ids)).Info("Destroying sessions")

	var g errgroup.Group
	g.SetLimit(shutdownParallelism)
	for _, id := range ids {
		g.Go(func() error {
			err := m.Destroy(ctx, id)
			if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
				return nil
			}
			return err
		})
	}
	destroyErr := g.Wait()

	loopsDone := make(chan struct{})
	go func() {
		m.loops.Wait()
		close(loopsDone)
	}()
	select {
	case <-loopsDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := m.relay.Wait(ctx); err != nil {
		return err
	}
	return destroyErr
}

// keyedMutex hands out one mutex per key, dropping it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex for key and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
