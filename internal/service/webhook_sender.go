package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"waprofiles/internal/constants"
	"waprofiles/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WebhookSender posts relay envelopes to profile webhooks. It makes a single
// attempt per envelope.
type WebhookSender struct {
	client    *http.Client
	userAgent string
	logger    *logrus.Logger
}

// NewWebhookSender builds a sender. The timeout bounds one delivery.
func NewWebhookSender(cfg models.WebhookConfig, logger *logrus.Logger) *WebhookSender {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultWebhookTimeoutMs) * time.Millisecond
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = constants.DefaultWebhookUserAgent
	}
	return &WebhookSender{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Deliver posts env as JSON. Any non-2xx answer is an error.
func (w *WebhookSender) Deliver(ctx context.Context, url string, env models.RelayEnvelope) error {
	if url == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	deliveryID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("X-Delivery-Id", deliveryID)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-success status: %d", resp.StatusCode)
	}

	w.logger.WithFields(logrus.Fields{
		LogFieldProfileID:  env.ProfileID,
		LogFieldDeliveryID: deliveryID,
		LogFieldStatusCode: resp.StatusCode,
	}).Debug("Webhook delivered")
	return nil
}
