package session

import (
	"context"
	"sync"
	"time"

	"waprofiles/internal/metrics"
	"waprofiles/internal/models"
	"waprofiles/internal/privacy"
	"waprofiles/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// Deliverer posts one relay envelope to a webhook URL.
type Deliverer interface {
	Deliver(ctx context.Context, url string, envelope models.RelayEnvelope) error
}

// Relay attaches inbound message listeners that forward every message to the
// profile's webhook. Delivery is fire-and-forget: at most once, no retry.
type Relay struct {
	deliverer Deliverer
	logger    *logrus.Logger
	timeout   time.Duration
	now       func() time.Time
	inflight  sync.WaitGroup
}

func NewRelay(deliverer Deliverer, logger *logrus.Logger, timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Relay{
		deliverer: deliverer,
		logger:    logger,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Bind replaces the listener of s. The previous listener is dropped first and
// a new one is attached only when enabled and webhookURL is set.
func (r *Relay) Bind(s *Session, webhookURL string, enabled bool) {
	if !enabled || webhookURL == "" {
		s.setListener(nil)
		return
	}

	profileID := s.ProfileID
	s.setListener(func(msg types.InboundMessage) {
		r.dispatch(profileID, webhookURL, msg)
	})
}

// Detach removes any listener from s.
func (r *Relay) Detach(s *Session) {
	s.setListener(nil)
}

func (r *Relay) dispatch(profileID, webhookURL string, msg types.InboundMessage) {
	// The envelope carries the relay time, not the provider's send time.
	received := r.now()
	envelope := models.RelayEnvelope{
		ProfileID: profileID,
		From:      msg.From,
		To:        msg.To,
		Message:   msg.Body,
		Timestamp: models.FormatRelayTimestamp(received),
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		start := time.Now()
		err := r.deliverer.Deliver(ctx, webhookURL, envelope)
		metrics.RecordTimer("webhook_delivery_duration", time.Since(start), nil, "Relay webhook delivery latency")
		if err != nil {
			metrics.IncrementCounter("webhook_delivery_failures_total", nil, "Relay webhook deliveries that failed")
			r.logger.WithFields(logrus.Fields{
				"profile_id": profileID,
				"from":       privacy.MaskChatID(msg.From),
			}).WithError(err).Warn("Failed to deliver message to webhook")
			return
		}
		metrics.IncrementCounter("webhook_deliveries_total", nil, "Relay webhook deliveries that succeeded")
	}()
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (r *Relay) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
