package config

import (
	"context"

	"github.com/draftea/order-fulfillment/orders-service/application"
	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/draftea/order-fulfillment/orders-service/handlers"
	"github.com/draftea/order-fulfillment/orders-service/infrastructure"
	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/idempotency"
	sharedinfra "github.com/draftea/order-fulfillment/shared/infrastructure"
	"github.com/draftea/order-fulfillment/shared/logging"
	"github.com/draftea/order-fulfillment/shared/resilience"
	"github.com/draftea/order-fulfillment/shared/telemetry"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

type Dependencies struct {
	Logger zerolog.Logger

	// Storage
	DB    *sqlx.DB
	Redis *redis.Client

	// Event channel
	Channel    *sharedinfra.Channel
	EventStore events.EventStore

	// Idempotency
	IdempotencyStore  idempotency.Store
	IdempotencyPurger idempotency.Purger

	// Repositories
	SagaRepository domain.SagaRepository

	// Downstream services
	InventoryPolicy *resilience.Policy
	PaymentPolicy   *resilience.Policy

	// Operator alerts
	Notifier domain.OperatorNotifier
	rabbitMQ *infrastructure.RabbitMQOperatorNotifier

	// Use Cases
	Orchestrator *application.Orchestrator
	SubmitOrder  *application.SubmitOrder
	GetSaga      *application.GetSaga
	ListSagas    *application.ListSagas

	// HTTP Handlers
	OrderHandlers *handlers.OrderHandlers

	// Event Handlers
	OrderEventHandlers *handlers.OrderEventHandlers

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()
}

func BuildDependencies(ctx context.Context, config *Config) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logging.New(logging.Config{
			ServiceName: config.ServiceName,
			Level:       config.Log.Level,
			Format:      config.Log.Format,
		}),
	}

	// Initialize telemetry first
	if config.Telemetry.Enabled {
		telConfig := telemetry.OrdersServiceConfig.
			WithServiceName(config.ServiceName).
			WithOTLPEndpoint(config.Telemetry.OTLPEndpoint)
		tel, telemetryShutdown, err := telemetry.InitTelemetry(ctx, telConfig)
		if err != nil {
			// Continue without telemetry rather than failing
			deps.Logger.Warn().Err(err).Msg("failed to initialize telemetry")
		} else {
			deps.Telemetry = tel
			deps.TelemetryShutdown = telemetryShutdown
		}
	}

	if err := deps.buildStorage(ctx, config); err != nil {
		deps.Close()
		return nil, err
	}

	channel, err := sharedinfra.NewChannel(ctx, config.Channel, deps.Logger)
	if err != nil {
		deps.Close()
		return nil, errors.Wrap(err, "failed to create event channel")
	}
	deps.Channel = channel

	// Every published event is journaled first so the read model can be rebuilt
	publisher := sharedinfra.NewJournalingPublisher(deps.EventStore, channel.Publisher)

	deps.InventoryPolicy = resilience.NewPolicy("inventory", config.Resilience.Inventory,
		resilience.WithStateChangeHook(deps.onBreakerStateChange))
	deps.PaymentPolicy = resilience.NewPolicy("payment", config.Resilience.Payment,
		resilience.WithStateChangeHook(deps.onBreakerStateChange))

	inventory := infrastructure.NewResilientInventory(
		infrastructure.NewInventoryHTTPAdapter(infrastructure.NewHTTPClient("inventory", config.Downstream.InventoryURL)),
		deps.InventoryPolicy,
	)
	payment := infrastructure.NewResilientPayment(
		infrastructure.NewPaymentHTTPAdapter(infrastructure.NewHTTPClient("payment", config.Downstream.PaymentURL)),
		deps.PaymentPolicy,
	)

	switch config.Operator.Driver {
	case "rabbitmq":
		notifier, err := infrastructure.NewRabbitMQOperatorNotifier(config.Operator.RabbitMQ(), deps.Logger)
		if err != nil {
			deps.Close()
			return nil, errors.Wrap(err, "failed to create operator notifier")
		}
		deps.rabbitMQ = notifier
		deps.Notifier = notifier
	default:
		deps.Notifier = infrastructure.NewLogOperatorNotifier(deps.Logger)
	}

	// Initialize use cases
	deps.Orchestrator = application.NewOrchestrator(
		deps.SagaRepository,
		inventory,
		payment,
		publisher,
		deps.IdempotencyStore,
		deps.Notifier,
		deps.Logger,
	)
	deps.SubmitOrder = application.NewSubmitOrder(deps.Orchestrator)
	deps.GetSaga = application.NewGetSaga(deps.SagaRepository)
	deps.ListSagas = application.NewListSagas(deps.SagaRepository)

	// Initialize handlers
	deps.OrderHandlers = handlers.NewOrderHandlers(deps.SubmitOrder, deps.GetSaga, deps.ListSagas)
	deps.OrderEventHandlers = handlers.NewOrderEventHandlers(deps.Orchestrator)

	return deps, nil
}

func (d *Dependencies) buildStorage(ctx context.Context, config *Config) error {
	if config.Database.Driver == sharedinfra.StorageDriverPostgres || config.Idempotency.Driver == sharedinfra.StorageDriverPostgres {
		db, err := sharedinfra.ConnectPostgres(ctx, config.Database)
		if err != nil {
			return err
		}
		d.DB = db
	}

	if config.Idempotency.Driver == sharedinfra.StorageDriverRedis {
		client := sharedinfra.NewRedisClient(config.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return errors.Wrap(err, "failed to ping redis")
		}
		d.Redis = client
	}

	if config.Database.Driver == sharedinfra.StorageDriverPostgres {
		d.EventStore = sharedinfra.NewPostgresEventStore(d.DB)
		d.SagaRepository = infrastructure.NewPostgresSagaRepository(d.DB)
	} else {
		d.EventStore = sharedinfra.NewMemoryEventStore()
		d.SagaRepository = infrastructure.NewMemorySagaRepository()
	}

	var client redis.UniversalClient
	if d.Redis != nil {
		client = d.Redis
	}
	store, purger, err := sharedinfra.NewIdempotencyStore(config.Idempotency, d.DB, client)
	if err != nil {
		return errors.Wrap(err, "failed to create idempotency store")
	}
	d.IdempotencyStore = store
	d.IdempotencyPurger = purger

	return nil
}

func (d *Dependencies) onBreakerStateChange(name string, from, to resilience.State) {
	d.Logger.Warn().
		Str("service", name).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("circuit breaker state changed")

	ctx := context.Background()
	if d.Telemetry != nil {
		ctx = telemetry.WithTelemetry(ctx, d.Telemetry)
	}
	telemetry.RecordCounter(ctx, "circuit_breaker_state_changes_total", "Circuit breaker transitions", 1,
		breakerTransitionAttributes(name, to)...,
	)
}

// breakerTransitionAttributes labels breaker transitions like rpc_calls_total
func breakerTransitionAttributes(service string, to resilience.State) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("to", string(to)),
	}
}

// Close closes all dependencies
func (d *Dependencies) Close() error {
	var errs []error

	if d.Channel != nil {
		if err := d.Channel.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close event channel"))
		}
	}

	if d.rabbitMQ != nil {
		if err := d.rabbitMQ.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close operator notifier"))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close redis"))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close database"))
		}
	}

	if d.TelemetryShutdown != nil {
		d.TelemetryShutdown()
	}

	if len(errs) > 0 {
		return errors.Errorf("errors closing dependencies: %v", errs)
	}

	return nil
}
