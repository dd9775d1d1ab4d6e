package app

import (
	"context"
	"fmt"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/farmbridge/internal/common"
	"github.com/noah-isme/farmbridge/internal/config"
	"github.com/noah-isme/farmbridge/internal/db"
	"github.com/noah-isme/farmbridge/internal/lock"
	"github.com/noah-isme/farmbridge/internal/payment"
	"github.com/noah-isme/farmbridge/internal/resilience"
)

const reconcileQueue = "payments"

// Dependencies holds the infrastructure shared by the api, worker and CLI binaries.
type Dependencies struct {
	Config     *config.Config
	Logger     zerolog.Logger
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Validator  *validator.Validate
	TaskClient *asynq.Client
	// TaskInspector frees reconcile task ids held by archived tasks.
	TaskInspector *asynq.Inspector
	TaskRedis     asynq.RedisConnOpt
}

// Options tunes Open for a particular binary.
type Options struct {
	// Migrate applies pending migrations before the pool is opened.
	Migrate bool
	// RedisMetrics enables redisotel metric instrumentation.
	RedisMetrics bool
}

// Open connects to Postgres and Redis and prepares the task client. The
// returned Dependencies must be closed by the caller.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	if opts.Migrate {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		logger.Info().Msg("migrations applied")
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if opts.RedisMetrics {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	taskRedis, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("parse task broker url: %w", err)
	}

	return &Dependencies{
		Config:        cfg,
		Logger:        logger,
		DB:            pool,
		Redis:         redisClient,
		Validator:     common.NewValidator(),
		TaskClient:    asynq.NewClient(taskRedis),
		TaskInspector: asynq.NewInspector(taskRedis),
		TaskRedis:     taskRedis,
	}, nil
}

// Close releases every connection held by d.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.TaskInspector != nil {
		if err := d.TaskInspector.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task inspector")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// Gateway builds the Paystack client behind retry, timeout and a circuit breaker.
func (d *Dependencies) Gateway() *payment.Paystack {
	cfg := d.Config
	logger := d.Logger
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "paystack",
		MinRequests:  cfg.CircuitGatewayMinRequests,
		FailureRatio: cfg.CircuitGatewayFailureRatio,
		OpenFor:      cfg.CircuitGatewayOpenFor,
		Logger:       &logger,
	})
	client := resilience.HTTPClient{
		Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Breaker:     breaker,
		BaseBackoff: cfg.PaystackRetryBase,
		MaxAttempts: cfg.PaystackRetryAttempts,
		Jitter:      0.2,
		Timeout:     cfg.PaystackTimeout,
	}
	return payment.NewPaystack(cfg.PaystackSecretKey, cfg.PaystackBaseURL, client)
}

// Payments assembles the payment components over the shared infrastructure.
type Payments struct {
	Repo       *payment.PgRepository
	Engine     *payment.Engine
	Service    *payment.Service
	Webhook    payment.Webhook
	Reconciler *payment.Reconciler
}

// Payments wires the repository, engine, service, webhook receiver and reconciler.
func (d *Dependencies) Payments() Payments {
	cfg := d.Config
	repo := payment.NewPgRepository(d.DB)
	engine := payment.NewEngine(repo)
	gateway := d.Gateway()

	tasks := payment.AsynqEnqueuer{Queue: reconcileQueue, MaxRetry: reconcileRetries(cfg)}
	if d.TaskClient != nil {
		tasks.Client = d.TaskClient
	}
	if d.TaskInspector != nil {
		tasks.Inspector = d.TaskInspector
	}
	var enqueuer payment.Enqueuer
	if cfg.ReconcileEnabled {
		enqueuer = tasks
	}

	return Payments{
		Repo:   repo,
		Engine: engine,
		Service: &payment.Service{
			Repo:           repo,
			Gateway:        gateway,
			Engine:         engine,
			Enqueuer:       enqueuer,
			CallbackURL:    cfg.CallbackURL(),
			ReconcileDelay: cfg.ReconcileDelay,
		},
		Webhook: payment.Webhook{
			Engine:    engine,
			Events:    repo,
			Secret:    cfg.PaystackWebhookSecret,
			Replay:    d.Redis,
			ReplayTTL: cfg.WebhookReplayTTL,
		},
		Reconciler: &payment.Reconciler{
			Repo:          repo,
			Engine:        engine,
			Gateway:       gateway,
			Enqueuer:      tasks,
			Locker:        lock.Locker{R: d.Redis},
			PendingExpiry: cfg.ReconcilePendingExpiry,
			StaleAfter:    cfg.ReconcileStaleAfter,
		},
	}
}

// reconcileRetries lets a pending payment be re-polled until it expires.
func reconcileRetries(cfg *config.Config) int {
	if cfg.ReconcileDelay <= 0 || cfg.ReconcilePendingExpiry <= 0 {
		return 0
	}
	return int(cfg.ReconcilePendingExpiry/cfg.ReconcileDelay) + 1
}

// ReconcileQueue is the asynq queue reconcile and sweep tasks run on.
func ReconcileQueue() string { return reconcileQueue }
