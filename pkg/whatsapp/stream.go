package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"waprofiles/internal/retry"
	"waprofiles/pkg/constants"
	"waprofiles/pkg/whatsapp/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// EventStream subscribes to the WAHA websocket and feeds every event into a
// Provider. It is the alternative to the inbound webhook when WAHA cannot
// reach this service.
type EventStream struct {
	provider *Provider
	url      string
	apiKey   string
	backoff  *retry.Backoff
}

// NewEventStream builds a stream for all sessions of the provider's WAHA server.
func NewEventStream(p *Provider) (*EventStream, error) {
	streamURL, err := websocketURL(p.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return &EventStream{
		provider: p,
		url:      streamURL,
		apiKey:   p.cfg.APIKey,
		backoff: retry.NewBackoff(retry.BackoffConfig{
			InitialDelay: time.Duration(constants.DefaultStreamReconnectMs) * time.Millisecond,
			MaxDelay:     time.Duration(constants.DefaultStreamMaxReconnectS) * time.Second,
			Multiplier:   2,
			Jitter:       true,
		}),
	}, nil
}

func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid WAHA base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported WAHA URL scheme %q", u.Scheme)
	}
	u.Path += types.EndpointWebSocket
	q := url.Values{}
	q.Set("session", "*")
	q.Add("events", types.WAHAEventSessionStatus)
	q.Add("events", types.WAHAEventMessage)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run keeps the subscription alive, reconnecting with backoff, until ctx ends.
func (s *EventStream) Run(ctx context.Context) error {
	err := s.backoff.Retry(ctx, func() error {
		err := s.consume(ctx)
		if ctx.Err() == nil {
			s.provider.logger.WithError(err).Warn("WAHA event stream disconnected, reconnecting")
		}
		return err
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *EventStream) consume(ctx context.Context) error {
	header := http.Header{}
	if s.apiKey != "" {
		header.Set("X-Api-Key", s.apiKey)
	}

	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("failed to dial WAHA event stream: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(constants.MaxStreamFrameBytes)

	s.provider.logger.Info("Subscribed to WAHA event stream")

	for {
		var event types.WebhookEvent
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return errors.New("event stream closed by server")
			}
			return fmt.Errorf("failed to read event: %w", err)
		}

		if err := s.provider.HandleEvent(ctx, &event); err != nil {
			var unhandled *ErrUnhandledEvent
			if errors.As(err, &unhandled) || errors.Is(err, ErrUnknownSession) {
				s.provider.logger.WithError(err).Debug("Ignoring WAHA event")
				continue
			}
			s.provider.logger.WithError(err).WithField("event", event.Event).Warn("Failed to handle WAHA event")
		}
	}
}
