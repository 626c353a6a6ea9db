// Package events publishes booking and invoice domain events.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Routing keys.
const (
	BookingHeld      = "booking.held"
	BookingCancelled = "booking.cancelled"
	InvoiceCreated   = "invoice.created"
	InvoiceConfirmed = "invoice.confirmed"
	InvoicePaid      = "invoice.paid"
	InvoiceCancelled = "invoice.cancelled"
	InvoiceExpired   = "invoice.expired"
)

// Publisher delivers an event payload under a routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, payload map[string]any) error
}

type logPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher returns a Publisher that only logs events. It is used when no
// broker is configured.
func NewLogPublisher(logger *zap.Logger) Publisher {
	return &logPublisher{logger: logger}
}

func (p *logPublisher) Publish(_ context.Context, key string, payload map[string]any) error {
	p.logger.Info("domain event", zap.String("key", key), zap.Any("payload", payload))
	return nil
}

// Event is a published message captured by Recorder.
type Event struct {
	Key     string
	Payload map[string]any
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, key string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Key: key, Payload: payload})
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Keys returns the routing keys in publish order.
func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.events))
	for _, e := range r.events {
		keys = append(keys, e.Key)
	}
	return keys
}
