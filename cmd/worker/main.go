package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/farmbridge/internal/app"
	"github.com/noah-isme/farmbridge/internal/config"
	"github.com/noah-isme/farmbridge/internal/obs"
	"github.com/noah-isme/farmbridge/internal/payment"
	"github.com/noah-isme/farmbridge/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	if !cfg.ReconcileEnabled {
		logger.Info().Msg("reconciliation disabled; worker exiting")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "farmbridge")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	deps, err := app.Open(startCtx, cfg, logger, app.Options{})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	reconciler := deps.Payments().Reconciler

	srv := asynq.NewServer(deps.TaskRedis, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{app.ReconcileQueue(): 1},
		BaseContext: func() context.Context { return logger.WithContext(context.Background()) },
		RetryDelayFunc: func(n int, err error, t *asynq.Task) time.Duration {
			if t.Type() == payment.TypeReconcile {
				return cfg.ReconcileDelay
			}
			return asynq.DefaultRetryDelayFunc(n, err, t)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			logger.Warn().Err(err).Str("task", t.Type()).Msg("task failed")
		}),
		Logger:   asynqLogger{logger: logger},
		LogLevel: asynq.WarnLevel,
	})
	mux := asynq.NewServeMux()
	reconciler.Register(mux)

	scheduler := asynq.NewScheduler(deps.TaskRedis, &asynq.SchedulerOpts{
		Logger:   asynqLogger{logger: logger},
		LogLevel: asynq.WarnLevel,
	})
	cronSpec := "@every " + cfg.ReconcileSweepInterval.String()
	if _, err := scheduler.Register(cronSpec, payment.NewSweepTask(), asynq.Queue(app.ReconcileQueue()), asynq.Unique(cfg.ReconcileSweepInterval)); err != nil {
		logger.Fatal().Err(err).Str("spec", cronSpec).Msg("register sweep")
	}

	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	logger.Info().Str("sweep", cronSpec).Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")

	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
