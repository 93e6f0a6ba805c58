package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/pkg/utils"
)

// Event types published by the session service.
const (
	SessionCreated     = "session.created"
	SessionReplaced    = "session.replaced"
	SessionClosed      = "session.closed"
	SubmissionSettled  = "submission.settled"
	VideoProgress      = "video.progress"
	VideoCompleted     = "video.completed"
	VideoFailed        = "video.failed"
	NotificationRaised = "notification"

	// AllEvents subscribes a handler to every event type
	AllEvents = "*"
)

type Event struct {
	ID        string                   `json:"id"`
	EventType string                   `json:"event_type"`
	SessionID string                   `json:"session_id"`
	Method    models.Method            `json:"method,omitempty"`
	Level     models.NotificationLevel `json:"level,omitempty"`
	Message   string                   `json:"message,omitempty"`
	Progress  float64                  `json:"progress,omitempty"`
	Handle    string                   `json:"handle,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

// NewEvent stamps an event with an ID and the current time.
func NewEvent(eventType, sessionID string) Event {
	return Event{
		ID:        utils.GenerateID(),
		EventType: eventType,
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
	}
}

type EventHandler func(ctx context.Context, event Event) error

type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType string, handler EventHandler)
}

// EventBusImpl dispatches events synchronously to the handlers registered
// for their type and to wildcard handlers.
type EventBusImpl struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

var _ EventBus = (*EventBusImpl)(nil)

func NewEventBus() *EventBusImpl {
	return &EventBusImpl{handlers: make(map[string][]EventHandler)}
}

// Publish runs every matching handler and joins their errors.
func (e *EventBusImpl) Publish(ctx context.Context, event Event) error {
	e.mu.RLock()
	handlers := make([]EventHandler, 0, len(e.handlers[event.EventType])+len(e.handlers[AllEvents]))
	handlers = append(handlers, e.handlers[event.EventType]...)
	handlers = append(handlers, e.handlers[AllEvents]...)
	e.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *EventBusImpl) Subscribe(eventType string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[eventType] = append(e.handlers[eventType], handler)
}
