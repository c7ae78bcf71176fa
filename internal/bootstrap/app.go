package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/paygate/internal/controller"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/paygate/internal/infrastructure/redis"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/repository/memory"
	"github.com/cassiomorais/paygate/internal/repository/postgres"
	"github.com/cassiomorais/paygate/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type App struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Metrics      *observability.Metrics
	Registry     *providers.Registry
	Processor    providers.Processor
	Payments     payment.Repository
	Locker       service.Locker
	Checkout     *service.CheckoutService
	HealthChecks []controller.HealthCheck

	pool   *pgxpool.Pool
	redis  *redis.Client
	tracer *sdktrace.TracerProvider
}

// New loads configuration and builds every dependency the binaries share.
// Configuration errors, an unknown processor or missing credentials abort
// startup.
func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(serviceName, cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("processor", cfg.Payment.Processor).Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	var reg prometheus.Registerer
	if !cfg.Observability.EnableMetrics {
		reg = prometheus.NewRegistry()
	}
	app.Metrics = observability.NewMetrics(metricsNamespace, reg)

	if err := app.connectStorage(ctx); err != nil {
		app.Close()
		return nil, err
	}

	app.Registry = providers.DefaultRegistry()
	app.Processor, err = app.Registry.New(cfg.Payment.Processor, ProcessorSettings(cfg),
		providers.WithHTTPClient(providers.NewHTTPClient(cfg.Payment.GatewayTimeout)),
		providers.WithLogger(observability.ForProcessor(logger, cfg.Payment.Processor)),
		providers.WithMetrics(app.Metrics),
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("configure payment processor: %w", err)
	}
	logger.Info().Str("processor", app.Processor.Name()).Msg("Payment processor ready")

	app.Checkout = service.NewCheckoutService(app.Payments, app.Processor, app.Locker, service.CheckoutConfig{
		CallbackURL:     cfg.Payment.CallbackURL,
		DefaultAmount:   cfg.Payment.DefaultAmount,
		ReferenceLength: cfg.Payment.ReferenceLength,
	}, logger, app.Metrics)

	return app, nil
}

func (a *App) connectStorage(ctx context.Context) error {
	cfg := a.Config

	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, &cfg.Database, a.Logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		a.Payments = postgres.NewPaymentRepository(pool)
		a.HealthChecks = append(a.HealthChecks, controller.HealthCheck{Name: "database", Ping: pool.Ping})
		a.Logger.Info().Msg("Connected to PostgreSQL")
	default:
		a.Payments = memory.NewPaymentRepository()
		a.Logger.Warn().Msg("Using in-memory payment storage")
	}

	if cfg.Redis.Enabled {
		client, err := infraRedis.NewClient(ctx, &cfg.Redis, a.Logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		a.Locker = infraRedis.NewLocker(client, cfg.Payment.LockTTL)
		a.HealthChecks = append(a.HealthChecks, controller.HealthCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
		a.Logger.Info().Msg("Connected to Redis")
	} else {
		a.Locker = service.NewLocalLocker()
	}
	return nil
}

// ProcessorSettings maps configuration onto adapter settings.
func ProcessorSettings(cfg *config.Config) providers.Settings {
	return providers.Settings{
		UseCallback:       cfg.Payment.UseCallback,
		Live:              cfg.Payment.Live,
		Location:          cfg.Payment.Location(),
		Timeout:           cfg.Payment.GatewayTimeout,
		PaystackSecretKey: cfg.Paystack.SecretKey,
		CredoPublicKey:    cfg.Credo.PublicKey,
		CredoSecretKey:    cfg.Credo.SecretKey,
		CredoServiceCode:  cfg.Credo.ServiceCode,
		CredoWebhookToken: cfg.Credo.WebhookToken,
		CredoBusinessCode: cfg.Credo.BusinessCode,
		BreakerThreshold:  cfg.Payment.CircuitBreakerThreshold,
		BreakerTimeout:    cfg.Payment.CircuitBreakerTimeout,
	}
}

func (a *App) Close() {
	if a.tracer != nil {
		if err := observability.Shutdown(context.Background(), a.tracer); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
