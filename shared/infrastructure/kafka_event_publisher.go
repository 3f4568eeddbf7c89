package infrastructure

import (
	"context"

	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

var _ events.Publisher = (*KafkaEventPublisher)(nil)

// KafkaConfig locates the Kafka topic used by the event channel
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// MessageWriter is the part of kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventPublisher writes events keyed by order id, so one order's events
// share a partition and keep their order.
type KafkaEventPublisher struct {
	writer MessageWriter
}

// NewKafkaEventPublisher creates a publisher with a hash-balanced writer
func NewKafkaEventPublisher(cfg KafkaConfig) *KafkaEventPublisher {
	return NewKafkaEventPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	})
}

func NewKafkaEventPublisherWithWriter(writer MessageWriter) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

// Publish implements events.Publisher
func (p *KafkaEventPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(evts))
	for _, event := range evts {
		value, err := event.ToJSON()
		if err != nil {
			return errors.Wrap(err, "failed to marshal event")
		}

		headers := kafkaHeaderCarrier{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID.String())},
		}
		otel.GetTextMapPropagator().Inject(ctx, &headers)

		messages = append(messages, kafka.Message{
			Key:     []byte(event.PartitionKey()),
			Value:   value,
			Headers: headers,
		})
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return errors.Wrap(err, "failed to write messages to Kafka")
	}

	return nil
}

// Close flushes and closes the writer
func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
