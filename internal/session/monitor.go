package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"waprofiles/internal/metrics"
	"waprofiles/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

const (
	defaultCheckInterval   = 30 * time.Second
	defaultStartupTimeout  = 5 * time.Minute
	defaultPingTimeout     = 10 * time.Second
	maxConsecutiveFailures = 3
)

// Monitor periodically pings every registered connection and purges
// sessions the provider no longer runs or that never left startup.
type Monitor struct {
	manager        *Manager
	logger         *logrus.Logger
	checkInterval  time.Duration
	startupTimeout time.Duration
	pingTimeout    time.Duration

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	failures map[string]int
}

func NewMonitor(manager *Manager, logger *logrus.Logger, checkInterval, startupTimeout time.Duration) *Monitor {
	if checkInterval <= 0 {
		checkInterval = defaultCheckInterval
	}
	if startupTimeout <= 0 {
		startupTimeout = defaultStartupTimeout
	}
	return &Monitor{
		manager:        manager,
		logger:         logger,
		checkInterval:  checkInterval,
		startupTimeout: startupTimeout,
		pingTimeout:    defaultPingTimeout,
		failures:       make(map[string]int),
	}
}

// Run checks sessions every interval until ctx is done or Stop is called.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("Session monitor is already running")
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	m.logger.WithField("interval", m.checkInterval.String()).Info("Session monitor started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stopCh:
			return nil
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// Stop ends a running monitor loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.stopCh == nil {
		return
	}
	close(m.stopCh)
	m.stopCh = nil
	m.logger.Info("Session monitor stopped")
}

func (m *Monitor) checkAll(ctx context.Context) {
	ids := m.manager.registry.IDs()
	metrics.SetGauge("sessions_active", float64(len(ids)), nil, "Registered sessions")
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		m.check(ctx, id)
	}
	m.forgetAbsent(ids)
}

func (m *Monitor) check(ctx context.Context, profileID string) {
	s, ok := m.manager.registry.Get(profileID)
	if !ok {
		return
	}
	log := m.logger.WithField("profile_id", profileID)

	if s.State() == StateInitializing && time.Since(s.CreatedAt) > m.startupTimeout {
		log.WithField("age", time.Since(s.CreatedAt).String()).Warn("Session stuck in startup, purging")
		m.manager.HandleDisconnect(s, "startup timeout")
		m.reset(profileID)
		return
	}
	// Until the provider has registered the run, Ping reports it gone; the
	// startup timeout above bounds this state instead.
	if s.State() == StateInitializing {
		log.Debug("Session still starting, skipping health check")
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	err := s.conn.Ping(pingCtx)
	cancel()

	switch {
	case err == nil:
		m.reset(profileID)
	case errors.Is(err, types.ErrSessionGone):
		log.Warn("Provider no longer runs session, purging")
		m.manager.HandleDisconnect(s, "session gone")
		m.reset(profileID)
	default:
		failures := m.recordFailure(profileID)
		log.WithError(err).WithField("consecutive_failures", failures).Warn("Session health check failed")
		metrics.IncrementCounter("session_health_check_failures_total", nil, "Failed session pings")
		if failures >= maxConsecutiveFailures {
			m.manager.HandleDisconnect(s, "health check failures")
			m.reset(profileID)
		}
	}
}

func (m *Monitor) recordFailure(profileID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[profileID]++
	return m.failures[profileID]
}

func (m *Monitor) reset(profileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, profileID)
}

func (m *Monitor) forgetAbsent(live []string) {
	keep := make(map[string]struct{}, len(live))
	for _, id := range live {
		keep[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.failures {
		if _, ok := keep[id]; !ok {
			delete(m.failures, id)
		}
	}
}
