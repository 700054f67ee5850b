package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
	}
}

// Publish synchronously invokes handlers for the given event. Every handler runs;
// their errors are joined.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// SubscribeAll registers handler for every known event type.
func SubscribeAll(d Dispatcher, handler EventHandler) {
	for _, t := range AllTypes {
		d.Subscribe(t, handler)
	}
}

// LogHandler writes each event to logger as a structured security log line.
func LogHandler(logger *zap.Logger) EventHandler {
	logger = logger.Named("security")
	return func(_ context.Context, event Event) error {
		fields := []zap.Field{
			zap.String("event_id", event.ID),
			zap.String("event", string(event.Type)),
			zap.String("actor_id", event.Actor.ID),
			zap.Time("at", event.Timestamp),
		}
		if event.Actor.Scope != "" {
			fields = append(fields, zap.String("actor_scope", event.Actor.Scope))
		}
		if event.Actor.TenantID != "" {
			fields = append(fields, zap.String("actor_tenant_id", event.Actor.TenantID))
		}
		if event.Subject != "" {
			fields = append(fields, zap.String("subject", event.Subject))
		}
		for k, v := range event.Attrs {
			fields = append(fields, zap.String(k, v))
		}
		logger.Info("security event", fields...)
		return nil
	}
}

// Publish sends event through d and logs a failure instead of returning it.
// A nil dispatcher is a no-op.
func Publish(ctx context.Context, d Dispatcher, logger *zap.Logger, event Event) {
	if d == nil {
		return
	}
	if err := d.Publish(ctx, event); err != nil && logger != nil {
		logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}
