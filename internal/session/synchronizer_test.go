package session

import (
	"context"
	"testing"
	"time"

	apperrors "waprofiles/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRace(t *testing.T) {
	tests := []struct {
		name     string
		signal   func(h *handshake)
		expected Outcome
		code     string
		wantErr  bool
	}{
		{
			name:     "pairing code",
			signal:   func(h *handshake) { h.signalCode("ABC123") },
			expected: OutcomePairingCode,
			code:     "ABC123",
		},
		{
			name:     "ready",
			signal:   func(h *handshake) { h.signalReady() },
			expected: OutcomeReady,
		},
		{
			name: "ready wins over buffered code",
			signal: func(h *handshake) {
				h.signalCode("ABC123")
				h.signalReady()
			},
			expected: OutcomeReady,
		},
		{
			name:     "failure",
			signal:   func(h *handshake) { h.signalFailure(errFake) },
			expected: OutcomeFailed,
			wantErr:  true,
		},
		{
			name:     "ceiling",
			signal:   func(*handshake) {},
			expected: OutcomePending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandshake()
			tt.signal(h)

			outcome, code, err := h.race(context.Background(), 10*time.Millisecond)
			assert.Equal(t, tt.expected, outcome)
			assert.Equal(t, tt.code, code)
			if tt.wantErr {
				assert.ErrorIs(t, err, errFake)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHandshakeRace_ContextDone(t *testing.T) {
	h := newHandshake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, _, err := h.race(ctx, time.Minute)
	assert.Equal(t, OutcomePending, outcome)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandshake_SignalsAreOneShot(t *testing.T) {
	h := newHandshake()
	h.signalCode("first")
	h.signalCode("second")
	h.signalReady()
	h.signalReady()
	h.signalFailure(errFake)
	h.signalFailure(errSessionEnded)

	assert.Equal(t, "first", <-h.code)
	assert.ErrorIs(t, h.failErr, errFake)
}

func TestPollPairingCode(t *testing.T) {
	t.Run("returns cached code", func(t *testing.T) {
		r := NewRegistry()
		s := newSession("p1", &fakeConn{})
		r.Put("p1", s)
		go func() {
			time.Sleep(15 * time.Millisecond)
			r.SetCode("p1", "CODE")
		}()

		code, err := pollPairingCode(context.Background(), r, s, 5*time.Millisecond, 100)
		require.NoError(t, err)
		assert.Equal(t, "CODE", code)
	})

	t.Run("exhausted attempts", func(t *testing.T) {
		r := NewRegistry()
		s := newSession("p1", &fakeConn{})
		r.Put("p1", s)

		_, err := pollPairingCode(context.Background(), r, s, time.Millisecond, 3)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePairingTimeout))
	})

	t.Run("authenticated meanwhile", func(t *testing.T) {
		r := NewRegistry()
		s := newSession("p1", &fakeConn{})
		s.setState(StateAuthenticated)
		r.Put("p1", s)

		_, err := pollPairingCode(context.Background(), r, s, time.Millisecond, 3)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyAuthenticated))
	})

	t.Run("session ended", func(t *testing.T) {
		r := NewRegistry()
		s := newSession("p1", &fakeConn{})
		s.markStopped()

		_, err := pollPairingCode(context.Background(), r, s, time.Millisecond, 3)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProvider))
	})

	t.Run("context cancelled", func(t *testing.T) {
		r := NewRegistry()
		s := newSession("p1", &fakeConn{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := pollPairingCode(ctx, r, s, time.Second, 3)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTimeout))
	})
}
