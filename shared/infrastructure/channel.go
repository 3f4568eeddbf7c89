package infrastructure

import (
	"context"
	"time"

	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 30 * time.Second

const (
	ChannelDriverMemory = "memory"
	ChannelDriverSNS    = "sns"
	ChannelDriverKafka  = "kafka"
)

// ChannelConfig selects and configures the event channel driver
type ChannelConfig struct {
	Driver          string      `mapstructure:"driver"`
	Partitions      int         `mapstructure:"partitions"`
	MaxRedeliveries int         `mapstructure:"max_redeliveries"`
	AWS             AWSConfig   `mapstructure:"aws"`
	Kafka           KafkaConfig `mapstructure:"kafka"`
}

// Channel pairs the publishing and consuming sides of one event channel
type Channel struct {
	Publisher  events.Publisher
	Subscriber events.Subscriber
	closers    []func() error
}

// NewChannel builds the channel selected by cfg.Driver
func NewChannel(ctx context.Context, cfg ChannelConfig, logger zerolog.Logger) (*Channel, error) {
	switch cfg.Driver {
	case "", ChannelDriverMemory:
		mem := NewMemoryChannel(logger,
			WithPartitions(cfg.Partitions),
			WithRedelivery(cfg.MaxRedeliveries, 50*time.Millisecond),
		)
		return &Channel{
			Publisher:  mem,
			Subscriber: mem,
			closers:    []func() error{mem.Close},
		}, nil

	case ChannelDriverSNS:
		publisher, err := NewSNSPublisherAdapter(ctx, cfg.AWS)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create SNS publisher")
		}

		var opts []SQSSubscriberOption
		if cfg.Partitions > 0 {
			opts = append(opts, WithWorkers(int32(cfg.Partitions)))
		}
		subscriber, err := NewSQSSubscriberAdapter(ctx, cfg.AWS, logger, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create SQS subscriber")
		}

		return &Channel{
			Publisher:  publisher,
			Subscriber: subscriber,
			closers:    []func() error{subscriber.Close, publisher.Close},
		}, nil

	case ChannelDriverKafka:
		publisher := NewKafkaEventPublisher(cfg.Kafka)
		subscriber := NewKafkaEventSubscriber(cfg.Kafka, logger, cfg.MaxRedeliveries)

		return &Channel{
			Publisher:  publisher,
			Subscriber: subscriber,
			closers:    []func() error{subscriber.Close, publisher.Close},
		}, nil
	}

	return nil, errors.Errorf("unknown channel driver %q", cfg.Driver)
}

// Close stops consuming first, then closes the publishing side
func (c *Channel) Close() error {
	var firstErr error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
