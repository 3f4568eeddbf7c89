package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var (
	_ domain.OperatorNotifier = (*LogOperatorNotifier)(nil)
	_ domain.OperatorNotifier = (*RabbitMQOperatorNotifier)(nil)
)

// LogOperatorNotifier writes failure alerts to the service log
type LogOperatorNotifier struct {
	logger zerolog.Logger
}

func NewLogOperatorNotifier(logger zerolog.Logger) *LogOperatorNotifier {
	return &LogOperatorNotifier{logger: logger.With().Str("component", "operator_notifier").Logger()}
}

func (n *LogOperatorNotifier) NotifySagaFailed(_ context.Context, alert domain.FailureAlert) error {
	n.logger.Error().
		Str("order_id", alert.OrderID.String()).
		Str("step", string(alert.Step)).
		Str("reason", alert.Reason).
		Int("attempts", alert.Attempts).
		Time("failed_at", alert.FailedAt).
		Msg("ALERT: saga requires manual intervention")
	return nil
}

const (
	alertExchangeType = "topic"
	alertRoutingKey   = "saga.failed"
)

// RabbitMQConfig holds the broker settings of the alert exchange
type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// AMQPPublisher is the part of *amqp.Channel the notifier uses
type AMQPPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQOperatorNotifier publishes failure alerts to a topic exchange, where
// on-call tooling binds its own queues
type RabbitMQOperatorNotifier struct {
	ch       AMQPPublisher
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
}

// NewRabbitMQOperatorNotifier dials the broker and declares the alert exchange
func NewRabbitMQOperatorNotifier(cfg RabbitMQConfig, logger zerolog.Logger) (*RabbitMQOperatorNotifier, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		logger.Warn().Err(err).Int("attempt", i+1).Msg("failed to connect to RabbitMQ")
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not connect to RabbitMQ")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "could not open channel")
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,      // name
		alertExchangeType, // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "could not declare exchange")
	}

	notifier := NewRabbitMQOperatorNotifierWithChannel(ch, cfg.Exchange)
	notifier.conn = conn
	notifier.channel = ch
	return notifier, nil
}

// NewRabbitMQOperatorNotifierWithChannel publishes through an open channel
func NewRabbitMQOperatorNotifierWithChannel(ch AMQPPublisher, exchange string) *RabbitMQOperatorNotifier {
	return &RabbitMQOperatorNotifier{ch: ch, exchange: exchange}
}

func (n *RabbitMQOperatorNotifier) NotifySagaFailed(ctx context.Context, alert domain.FailureAlert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return errors.Wrap(err, "could not marshal alert")
	}

	err = n.ch.PublishWithContext(ctx,
		n.exchange,      // exchange
		alertRoutingKey, // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     alert.OrderID.String(),
			CorrelationId: alert.OrderID.String(),
			Timestamp:     alert.FailedAt,
			Body:          body,
		},
	)
	return errors.Wrap(err, "could not publish alert")
}

// Close closes the channel and connection opened by the notifier
func (n *RabbitMQOperatorNotifier) Close() error {
	if n.channel != nil {
		_ = n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
