package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"waprofiles/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_PurgesGoneSessions(t *testing.T) {
	provider := &fakeProvider{onStart: func(c *fakeConn) { c.emitReady() }}
	m, _ := newTestManager(t, provider, testConfig())
	_, err := m.Initialize(context.Background(), "p1", "", false)
	require.NoError(t, err)
	provider.last().pingErr.Store(types.ErrSessionGone)

	monitor := NewMonitor(m, quietLogger(), time.Hour, time.Hour)
	monitor.checkAll(context.Background())

	_, ok := m.GetSession("p1")
	assert.False(t, ok)
}

func TestMonitor_HealthySessionKept(t *testing.T) {
	provider := &fakeProvider{onStart: func(c *fakeConn) { c.emitReady() }}
	m, _ := newTestManager(t, provider, testConfig())
	_, err := m.Initialize(context.Background(), "p1", "", false)
	require.NoError(t, err)

	monitor := NewMonitor(m, quietLogger(), time.Hour, time.Hour)
	monitor.checkAll(context.Background())

	_, ok := m.GetSession("p1")
	assert.True(t, ok)
}

func TestMonitor_ConsecutiveFailures(t *testing.T) {
	provider := &fakeProvider{onStart: func(c *fakeConn) { c.emitReady() }}
	m, _ := newTestManager(t, provider, testConfig())
	_, err := m.Initialize(context.Background(), "p1", "", false)
	require.NoError(t, err)
	provider.last().pingErr.Store(errors.New("connection refused"))

	monitor := NewMonitor(m, quietLogger(), time.Hour, time.Hour)
	for i := 0; i < maxConsecutiveFailures-1; i++ {
		monitor.checkAll(context.Background())
	}
	_, ok := m.GetSession("p1")
	require.True(t, ok)

	monitor.checkAll(context.Background())
	_, ok = m.GetSession("p1")
	assert.False(t, ok)
}

func TestMonitor_PurgesStuckStartup(t *testing.T) {
	provider := &fakeProvider{}
	cfg := testConfig()
	cfg.InitTimeout = 5 * time.Millisecond
	m, _ := newTestManager(t, provider, cfg)
	_, err := m.Initialize(context.Background(), "p1", "", false)
	require.NoError(t, err)

	monitor := NewMonitor(m, quietLogger(), time.Hour, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	monitor.checkAll(context.Background())

	_, ok := m.GetSession("p1")
	assert.False(t, ok)
}

func TestMonitor_StartingSessionNotPurgedAsGone(t *testing.T) {
	provider := &fakeProvider{}
	cfg := testConfig()
	cfg.InitTimeout = 5 * time.Millisecond
	m, _ := newTestManager(t, provider, cfg)
	result, err := m.Initialize(context.Background(), "p1", "", false)
	require.NoError(t, err)
	require.Equal(t, OutcomePending, result.Outcome)
	provider.last().pingErr.Store(types.ErrSessionGone)

	monitor := NewMonitor(m, quietLogger(), time.Hour, time.Hour)
	monitor.checkAll(context.Background())

	s, ok := m.GetSession("p1")
	require.True(t, ok)
	assert.Equal(t, StateInitializing, s.State())
}

func TestMonitor_RunStops(t *testing.T) {
	m, _ := newTestManager(t, &fakeProvider{}, testConfig())
	monitor := NewMonitor(m, quietLogger(), 5*time.Millisecond, time.Hour)

	done := make(chan error, 1)
	go func() { done <- monitor.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		monitor.mu.Lock()
		defer monitor.mu.Unlock()
		return monitor.running
	}, time.Second, time.Millisecond)
	monitor.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
