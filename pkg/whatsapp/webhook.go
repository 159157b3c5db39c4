package whatsapp

import (
	"context"
	"fmt"
	"sync"

	"waprofiles/pkg/whatsapp/types"
)

// EventHandlerFunc handles one WAHA event type.
type EventHandlerFunc func(context.Context, *types.WebhookEvent) error

// WebhookHandler routes WAHA events by event name.
type WebhookHandler interface {
	Handle(ctx context.Context, event *types.WebhookEvent) error
	RegisterEventHandler(eventType string, handler EventHandlerFunc)
}

// ErrUnhandledEvent is returned for event types without a registered handler.
type ErrUnhandledEvent struct {
	Event string
}

func (e *ErrUnhandledEvent) Error() string {
	return fmt.Sprintf("no handler registered for event type: %s", e.Event)
}

type webhookHandler struct {
	handlers map[string]EventHandlerFunc
	mu       sync.RWMutex
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler() WebhookHandler {
	return &webhookHandler{
		handlers: make(map[string]EventHandlerFunc),
	}
}

func (wh *webhookHandler) Handle(ctx context.Context, event *types.WebhookEvent) error {
	wh.mu.RLock()
	handler, exists := wh.handlers[event.Event]
	wh.mu.RUnlock()

	if !exists {
		return &ErrUnhandledEvent{Event: event.Event}
	}

	return handler(ctx, event)
}

func (wh *webhookHandler) RegisterEventHandler(eventType string, handler EventHandlerFunc) {
	wh.mu.Lock()
	defer wh.mu.Unlock()

	wh.handlers[eventType] = handler
}
