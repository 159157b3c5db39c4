package session

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "waprofiles/internal/errors"
)

// Outcome records which signal ended the startup race.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeReady
	OutcomePairingCode
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomePairingCode:
		return "pairing_code"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

var errSessionEnded = errors.New("session ended before pairing completed")

// handshake collects the first ready, pairing code and failure signal of one
// connection. Each signal fires at most once; later signals still update the
// registry through the event loop but no longer affect the race.
type handshake struct {
	ready  chan struct{}
	code   chan string
	failed chan struct{}

	readyOnce sync.Once
	codeOnce  sync.Once
	failOnce  sync.Once
	failErr   error
}

func newHandshake() *handshake {
	return &handshake{
		ready:  make(chan struct{}),
		code:   make(chan string, 1),
		failed: make(chan struct{}),
	}
}

func (h *handshake) signalReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

func (h *handshake) signalCode(code string) {
	h.codeOnce.Do(func() { h.code <- code })
}

func (h *handshake) signalFailure(err error) {
	h.failOnce.Do(func() {
		h.failErr = err
		close(h.failed)
	})
}

// race blocks until the connection is ready, a pairing code is issued, the
// connection fails, the ceiling expires or ctx is done. Ready wins over an
// already buffered code since a code is always issued before readiness.
func (h *handshake) race(ctx context.Context, ceiling time.Duration) (Outcome, string, error) {
	select {
	case <-h.ready:
		return OutcomeReady, "", nil
	default:
	}

	timer := time.NewTimer(ceiling)
	defer timer.Stop()

	select {
	case <-h.ready:
		return OutcomeReady, "", nil
	case code := <-h.code:
		return OutcomePairingCode, code, nil
	case <-h.failed:
		return OutcomeFailed, "", h.failErr
	case <-timer.C:
		return OutcomePending, "", nil
	case <-ctx.Done():
		return OutcomePending, "", ctx.Err()
	}
}

// pollPairingCode checks the registry for a code every interval, at most
// attempts times. It stops early when the session authenticates or ends.
func pollPairingCode(ctx context.Context, registry *Registry, s *Session, interval time.Duration, attempts int) (string, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return "", apperrors.WrapRetryable(ctx.Err(), apperrors.ErrCodeTimeout, "pairing code wait interrupted").
				WithContext("profile_id", s.ProfileID).
				WithUserMessage("Operation timed out, please try again")
		case <-ticker.C:
		}

		if code, ok := registry.GetCode(s.ProfileID); ok {
			return code, nil
		}
		if s.State() == StateAuthenticated {
			return "", apperrors.NewAlreadyAuthenticatedError(s.ProfileID)
		}
		if s.Stopped() {
			return "", apperrors.NewProviderError(s.ProfileID, "pairing", errSessionEnded)
		}
	}

	return "", apperrors.NewPairingTimeoutError(s.ProfileID, attempts, interval)
}
