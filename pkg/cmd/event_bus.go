package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/goalgate/pkg/channels/gochannel"
	"github.com/dukex/goalgate/pkg/channels/kafka"
	"github.com/dukex/goalgate/pkg/eventbus"
)

// NewEventBus builds the lifecycle event bus. It returns nil for "none".
func NewEventBus(provider, brokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "none":
		return nil, nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(wlogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wlogger, kafka.ParseBrokers(brokers), "goalgate")
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
