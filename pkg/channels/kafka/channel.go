// Package kafka provides a watermill Kafka channel for the event bus.
package kafka

import (
	"errors"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/goalgate/pkg/events"
)

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(list string) []string {
	brokers := []string{}

	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return brokers
}

// PartitionKey routes a message by its goal id, so one goal's lifecycle
// lands on a single partition in publish order.
func PartitionKey(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(events.EventMetadataKey), nil
}

// CreateChannel connects a publisher and a consumer-group subscriber named
// after serviceName. Subscribers start from the oldest offset.
func CreateChannel(logger watermill.LoggerAdapter, brokers []string, serviceName string) (*kafka.Publisher, *kafka.Subscriber, error) {
	if len(brokers) == 0 {
		return nil, nil, errors.New("no Kafka brokers configured")
	}

	marshaler := kafka.NewWithPartitioningMarshaler(PartitionKey)

	consumerConfig := kafka.DefaultSaramaSubscriberConfig()
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               brokers,
		Unmarshaler:           marshaler,
		OverwriteSaramaConfig: consumerConfig,
		ConsumerGroup:         serviceName + "-events",
		OTELEnabled:           true,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	producerConfig := kafka.DefaultSaramaSyncPublisherConfig()
	producerConfig.Producer.Partitioner = sarama.NewHashPartitioner

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:               brokers,
		Marshaler:             marshaler,
		OverwriteSaramaConfig: producerConfig,
		OTELEnabled:           true,
	}, logger)
	if err != nil {
		_ = subscriber.Close()

		return nil, nil, err
	}

	return publisher, subscriber, nil
}
