package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/farmbridge/internal/app"
	"github.com/noah-isme/farmbridge/internal/auth"
	"github.com/noah-isme/farmbridge/internal/common"
	"github.com/noah-isme/farmbridge/internal/config"
	dbgen "github.com/noah-isme/farmbridge/internal/db/gen"
	"github.com/noah-isme/farmbridge/internal/health"
	"github.com/noah-isme/farmbridge/internal/listing"
	"github.com/noah-isme/farmbridge/internal/obs"
	"github.com/noah-isme/farmbridge/internal/payment"
	"github.com/noah-isme/farmbridge/internal/ratelimit"
	"github.com/noah-isme/farmbridge/internal/resilience"
	"github.com/noah-isme/farmbridge/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "farmbridge")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)
	if metricsEnabled {
		shutdownMeter, err := obs.InitMeter(ctx, "farmbridge-api", prometheus.DefaultRegisterer)
		if err != nil {
			logger.Error().Err(err).Msg("initialise meter")
		} else {
			defer func() {
				if err := shutdownMeter(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown meter")
				}
			}()
		}
	}

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "farmbridge-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	deps, err := app.Open(startCtx, cfg, logger, app.Options{Migrate: cfg.MigrateOnStart, RedisMetrics: metricsEnabled})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	queries := dbgen.New(deps.DB)

	authService, err := auth.NewService(auth.Config{
		Queries:        queries,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	csrf := security.CSRF{SessionCookie: cfg.AccessCookieName}
	authHandler := &auth.Handler{
		Service:          authService,
		Validate:         deps.Validator,
		CSRF:             csrf,
		AccessCookieName: cfg.AccessCookieName,
		CookieSecure:     cfg.CookieSecure,
		CookieSameSite:   http.SameSiteLaxMode,
	}
	authMiddleware := auth.Middleware{Service: authService, AccessCookie: cfg.AccessCookieName}

	listingHandler := &listing.Handler{
		Svc:      &listing.Service{Repo: listing.NewPgRepository(deps.DB)},
		Validate: deps.Validator,
	}

	payments := deps.Payments()
	paymentHandler := &payment.Handler{
		Svc:           payments.Service,
		Validate:      deps.Validator,
		PublicBaseURL: cfg.PublicBaseURL,
	}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	onLimiterError := func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") }
	statusLimiter := mustLimiter(logger, deps.Redis, cfg.RateLimitStatus, "rl:status")
	webhookLimiter := mustLimiter(logger, deps.Redis, cfg.RateLimitWebhook, "rl:webhook")
	statusLimit := ratelimit.Handler{Limiter: statusLimiter, OnError: onLimiterError}
	webhookLimit := ratelimit.Handler{
		Limiter: webhookLimiter,
		Key:     func(r *http.Request) string { return "ip:" + common.ClientIP(r) },
		OnError: onLimiterError,
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBuckets(envOrDefault("OBS_METRICS_BUCKETS_SECONDS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.Instrument{Metrics: httpMetrics, Tracing: tracingEnabled}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	headers := security.Headers{BehindProxy: true}
	if cfg.CookieSecure {
		headers.HSTS = 365 * 24 * time.Hour
	}
	r.Use(headers.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(authMiddleware.Authenticate)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{Checks: []health.Check{
		{
			Name:     "postgres",
			Critical: true,
			Timeout:  envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
			Ping:     deps.DB.Ping,
		},
		{
			// without redis, rate limits fail open and keyed initiations fail
			Name:    "redis",
			Timeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
			Ping:    func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() },
		},
	}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	// gateway callbacks are signed, not cookie authenticated
	r.With(webhookLimit.Middleware).Post("/paystack/webhook", payments.Webhook.Handle)
	r.Get("/payment/success", paymentHandler.Success)

	r.Group(func(web chi.Router) {
		web.Use(csrf.Middleware)

		web.Route("/auth", func(a chi.Router) {
			a.Post("/register", authHandler.Register)
			a.Post("/login", authHandler.Login)
			a.Post("/logout", authHandler.Logout)
			a.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		web.Get("/listings", listingHandler.Search)
		web.Group(func(farmer chi.Router) {
			farmer.Use(authMiddleware.RequireAuth)
			farmer.Post("/listings", listingHandler.Create)
			farmer.Get("/listings/mine", listingHandler.Mine)
			farmer.Patch("/listings/{id}", listingHandler.Update)
			farmer.Delete("/listings/{id}", listingHandler.Delete)
		})

		web.With(idem.Middleware).Post("/paystack/initiate", paymentHandler.Initiate)
		web.With(statusLimit.Middleware).Get("/api/transaction-status/{reference}", paymentHandler.Status)
		web.Get("/transactions/{reference}", paymentHandler.Detail)
		web.Get("/payments", paymentHandler.History)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		health.SetReady(false)
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func mustLimiter(logger zerolog.Logger, rdb *redis.Client, rate, prefix string) *limiter.Limiter {
	l, err := ratelimit.NewRedisLimiter(rdb, rate, prefix)
	if err != nil {
		logger.Fatal().Err(err).Str("rate", rate).Msg("initialise rate limiter")
	}
	return l
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{cfg.PublicBaseURL}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
