// Package eventbus carries goal lifecycle events between the executor and
// whoever listens: the log, a kafka topic, or an in-process subscriber.
package eventbus

import (
	"context"

	"github.com/dukex/goalgate/pkg/events"
)

// Event is any lifecycle notification from pkg/events.
type Event interface {
	GetType() events.EventType
}

// EventPublisher is all the executor needs. goalID becomes the message key so
// the events of one goal stay ordered on partitioned transports.
type EventPublisher interface {
	Publish(ctx context.Context, goalID string, event Event) error
}

// EventHandler receives a decoded event, one of the pointer types returned by events.New.
type EventHandler func(ctx context.Context, event any) error

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}

// Nop drops every event. It is used when no bus is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }
