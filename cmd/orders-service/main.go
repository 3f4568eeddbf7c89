package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/draftea/order-fulfillment/orders-service/config"
	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/idempotency"
	"github.com/draftea/order-fulfillment/shared/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.ReadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies
	deps, err := config.BuildDependencies(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build dependencies")
	}
	logger := deps.Logger

	if deps.Telemetry != nil {
		ctx = telemetry.WithTelemetry(ctx, deps.Telemetry)
	}

	logger.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("channel", cfg.Channel.Driver).
		Str("storage", cfg.Database.Driver).
		Msg("starting orders service")

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Start event subscriber
	g.Go(func() error {
		if err := deps.Channel.Subscriber.Subscribe(gctx, events.AllOrderEvents, deps.OrderEventHandlers); err != nil {
			return errors.Wrap(err, "event subscriber")
		}
		return nil
	})

	g.Go(func() error {
		deps.Orchestrator.RunMaintenance(gctx, cfg.Saga.MaintenanceInterval, cfg.Saga.StalledAfter)
		return nil
	})

	if deps.IdempotencyPurger != nil {
		g.Go(func() error {
			idempotency.RunPurger(gctx, deps.IdempotencyPurger, cfg.Idempotency.Retention, cfg.Idempotency.PurgeInterval,
				func(n int64, err error) {
					if err != nil {
						logger.Error().Err(err).Msg("failed to purge processed events")
						return
					}
					logger.Debug().Int64("purged", n).Msg("processed events purged")
				})
			return nil
		})
	}

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down orders service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	if err := deps.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing dependencies")
	}

	if runErr != nil {
		logger.Error().Err(runErr).Msg("orders service stopped with error")
		os.Exit(1)
	}

	logger.Info().Msg("orders service stopped")
}

func setupRouter(deps *config.Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Telemetry middleware (inject telemetry into context)
	if deps.Telemetry != nil {
		r.Use(telemetry.Middleware(deps.Telemetry))
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics endpoint for Prometheus
	r.Handle("/metrics", telemetry.MetricsHandler())

	deps.OrderHandlers.RegisterRoutes(r)

	return r
}
