package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/goalgate/pkg/events"
)

// WatermillEventBus publishes every lifecycle event to events.Topic and
// dispatches received messages by their event-type metadata.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	mu       sync.RWMutex
	handlers map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("module", "eventbus"),
		handlers:   make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) Publish(ctx context.Context, goalID string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, goalID)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	if err := eb.publisher.Publish(events.Topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event for goal %s: %w", event.GetType(), goalID, err)
	}

	return nil
}

// Handle registers the handler for one event type, replacing any earlier one.
func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	if _, known := events.New(eventType); !known {
		return fmt.Errorf("unknown event type %q", eventType)
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = handler

	return nil
}

// Subscribe starts consuming in the background until ctx is done or the
// subscriber is closed.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	go func() {
		for msg := range messages {
			if err := eb.dispatch(ctx, msg); err != nil {
				eb.logger.WarnContext(ctx, "event handling failed",
					"message_id", msg.UUID,
					"goal_id", msg.Metadata.Get(events.EventMetadataKey),
					"error", err)
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

// dispatch decodes msg and hands it to its handler. Events nobody handles are acked.
func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) error {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handler, ok := eb.handlers[eventType]
	eb.mu.RUnlock()

	if !ok {
		return nil
	}

	event, _ := events.New(eventType)
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}

	return handler(ctx, event)
}

func (eb *WatermillEventBus) Close() error {
	return errors.Join(eb.publisher.Close(), eb.subscriber.Close())
}
