package security

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// WAHA signs webhook bodies with HMAC-SHA512 and stamps them in milliseconds.
const (
	WAHASignatureHeader = "X-Webhook-Hmac"
	WAHATimestampHeader = "X-Webhook-Timestamp"
)

var (
	ErrMissingSignature  = errors.New("missing signature header")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrStaleWebhook      = errors.New("webhook timestamp outside allowed skew")
)

// WebhookVerifier checks signed WAHA webhook requests.
type WebhookVerifier struct {
	Secret string
	// Required rejects unsigned requests when no secret is configured.
	Required bool
	MaxSkew  time.Duration
	MaxBody  int64
	Now      func() time.Time
}

// Verify reads the body, checks its signature and returns it. The request
// body is replaced so later readers still see it.
func (v *WebhookVerifier) Verify(r *http.Request) ([]byte, error) {
	reader := io.Reader(r.Body)
	if v.MaxBody > 0 {
		reader = io.LimitReader(r.Body, v.MaxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if v.MaxBody > 0 && int64(len(body)) > v.MaxBody {
		return nil, fmt.Errorf("request body exceeds %d bytes", v.MaxBody)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if v.Secret == "" {
		if v.Required {
			return nil, fmt.Errorf("webhook secret is required in production mode")
		}
		return body, nil
	}

	signature := r.Header.Get(WAHASignatureHeader)
	if signature == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingSignature, WAHASignatureHeader)
	}
	if err := v.checkTimestamp(r.Header.Get(WAHATimestampHeader)); err != nil {
		return nil, err
	}

	if !hmac.Equal([]byte(Sign(v.Secret, body)), []byte(signature)) {
		return nil, ErrSignatureMismatch
	}
	return body, nil
}

func (v *WebhookVerifier) checkTimestamp(raw string) error {
	if raw == "" {
		return fmt.Errorf("missing %s header", WAHATimestampHeader)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s header: %w", WAHATimestampHeader, err)
	}
	if v.MaxSkew <= 0 {
		return nil
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	skew := now().Sub(time.UnixMilli(ms))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.MaxSkew {
		return ErrStaleWebhook
	}
	return nil
}

// Sign returns the hex HMAC-SHA512 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
