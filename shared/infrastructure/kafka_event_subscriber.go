package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

var _ events.Subscriber = (*KafkaEventSubscriber)(nil)

// MessageReader is the part of kafka.Reader the subscriber uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventSubscriber consumes a topic as part of a consumer group. Each
// partition gets its own worker that handles messages in offset order and
// commits after handling.
type KafkaEventSubscriber struct {
	reader          MessageReader
	logger          zerolog.Logger
	maxRedeliveries int
	redeliveryDelay time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers map[int]chan kafka.Message
}

// NewKafkaEventSubscriber creates a group reader for the configured topic
func NewKafkaEventSubscriber(cfg KafkaConfig, logger zerolog.Logger, maxRedeliveries int) *KafkaEventSubscriber {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewKafkaEventSubscriberWithReader(reader, logger, maxRedeliveries)
}

func NewKafkaEventSubscriberWithReader(reader MessageReader, logger zerolog.Logger, maxRedeliveries int) *KafkaEventSubscriber {
	return &KafkaEventSubscriber{
		reader:          reader,
		logger:          logger.With().Str("component", "kafka_subscriber").Logger(),
		maxRedeliveries: maxRedeliveries,
		redeliveryDelay: 200 * time.Millisecond,
		workers:         make(map[int]chan kafka.Message),
	}
}

// Subscribe starts the fetch loop
func (s *KafkaEventSubscriber) Subscribe(ctx context.Context, pattern events.Topic, handler events.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("subscriber is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fetch(ctx, pattern, handler)
	}()

	return nil
}

func (s *KafkaEventSubscriber) fetch(ctx context.Context, pattern events.Topic, handler events.EventHandler) {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("failed to fetch message")
			sleep(ctx, time.Second)
			continue
		}

		select {
		case s.workerFor(ctx, msg.Partition, pattern, handler) <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (s *KafkaEventSubscriber) workerFor(ctx context.Context, partition int, pattern events.Topic, handler events.EventHandler) chan kafka.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.workers[partition]; ok {
		return ch
	}

	ch := make(chan kafka.Message, 64)
	s.workers[partition] = ch

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-ch:
				s.process(ctx, msg, pattern, handler)
				if ctx.Err() != nil {
					return
				}
				if err := s.reader.CommitMessages(ctx, msg); err != nil {
					s.logger.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("failed to commit message")
				}
			}
		}
	}()

	return ch
}

func (s *KafkaEventSubscriber) process(ctx context.Context, msg kafka.Message, pattern events.Topic, handler events.EventHandler) {
	event, err := events.FromJSON(msg.Value)
	if err != nil || event.ID == "" || event.AggregateID == "" {
		s.logger.Warn().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("dropping malformed message")
		return
	}
	if event.Topic == "" {
		event.Topic = events.Topic(event.EventType)
	}
	if !event.Topic.Matches(pattern) {
		return
	}

	headers := kafkaHeaderCarrier(msg.Headers)
	ctx = otel.GetTextMapPropagator().Extract(ctx, &headers)

	for attempt := 0; ; attempt++ {
		err := handler.Handle(ctx, event)
		if err == nil {
			return
		}

		if attempt >= s.maxRedeliveries || ctx.Err() != nil {
			s.logger.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Str("order_id", event.AggregateID.String()).
				Int64("sequence", event.Sequence).
				Msg("event dead-lettered after redeliveries")
			return
		}

		sleep(ctx, s.redeliveryDelay*time.Duration(attempt+1))
	}
}

// Close stops the workers and closes the reader
func (s *KafkaEventSubscriber) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if err := s.reader.Close(); err != nil {
		return errors.Wrap(err, "failed to close Kafka reader")
	}
	return nil
}
