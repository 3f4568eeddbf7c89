package config

import (
	"context"

	"github.com/draftea/order-fulfillment/order-query-service/application"
	"github.com/draftea/order-fulfillment/order-query-service/domain"
	"github.com/draftea/order-fulfillment/order-query-service/handlers"
	"github.com/draftea/order-fulfillment/order-query-service/infrastructure"
	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/idempotency"
	sharedinfra "github.com/draftea/order-fulfillment/shared/infrastructure"
	"github.com/draftea/order-fulfillment/shared/logging"
	"github.com/draftea/order-fulfillment/shared/telemetry"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
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

	// Read model
	SummaryStore domain.SummaryStore
	Projector    *application.Projector

	// Use Cases
	GetOrderSummary  *application.GetOrderSummary
	RebuildSummaries *application.RebuildSummaries

	// HTTP Handlers
	SummaryHandlers *handlers.SummaryHandlers

	// Event Handlers
	SummaryEventHandlers *handlers.SummaryEventHandlers

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

	gapPolicy, err := application.NewGapPolicy(config.Projector.GapPolicy)
	if err != nil {
		return nil, err
	}

	// Initialize telemetry first
	if config.Telemetry.Enabled {
		telConfig := telemetry.OrderQueryServiceConfig.
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

	deps.Projector = application.NewProjector(
		deps.SummaryStore,
		deps.IdempotencyStore,
		gapPolicy,
		config.Projector.MaxBuffered,
		deps.Logger,
		application.WithMaxBufferAge(config.Projector.MaxBufferAge),
	)

	// Initialize use cases
	deps.GetOrderSummary = application.NewGetOrderSummary(deps.SummaryStore)
	deps.RebuildSummaries = application.NewRebuildSummaries(deps.EventStore, deps.SummaryStore, deps.Logger)

	// Initialize handlers
	deps.SummaryHandlers = handlers.NewSummaryHandlers(deps.GetOrderSummary, deps.RebuildSummaries)

	// The postgres journal is written by the orders service; in memory this
	// service journals what it consumes so rebuilds have a history to replay.
	var journal events.EventStore
	if config.Database.Driver != sharedinfra.StorageDriverPostgres {
		journal = deps.EventStore
	}
	deps.SummaryEventHandlers = handlers.NewSummaryEventHandlers(deps.Projector, journal)

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
		d.SummaryStore = infrastructure.NewPostgresSummaryStore(d.DB)
	} else {
		d.EventStore = sharedinfra.NewMemoryEventStore()
		d.SummaryStore = infrastructure.NewMemorySummaryStore()
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

// Close closes all dependencies
func (d *Dependencies) Close() error {
	var errs []error

	if d.Channel != nil {
		if err := d.Channel.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close event channel"))
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
