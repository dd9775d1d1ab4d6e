package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	AccessTokenTTL     time.Duration
	AccessCookieName   string
	CookieSecure       bool
	CORSAllowedOrigins []string
	PublicBaseURL      string
	MigrateOnStart     bool
	BodyLimitBytes     int64

	PaystackSecretKey     string
	PaystackWebhookSecret string
	PaystackBaseURL       string
	PaystackTimeout       time.Duration
	PaystackRetryAttempts int
	PaystackRetryBase     time.Duration

	CircuitGatewayMinRequests  int
	CircuitGatewayFailureRatio float64
	CircuitGatewayOpenFor      time.Duration

	IdempotencyTTL   time.Duration
	RateLimitStatus  string
	RateLimitWebhook string
	WebhookReplayTTL time.Duration

	ReconcileEnabled       bool
	ReconcileDelay         time.Duration
	ReconcilePendingExpiry time.Duration
	ReconcileSweepInterval time.Duration
	ReconcileStaleAfter    time.Duration
	WorkerConcurrency      int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		JWTSecret:          k.String("JWT_SECRET"),
		AccessTokenTTL:     parseDuration(k.String("ACCESS_TOKEN_TTL"), "12h"),
		AccessCookieName:   valueOrDefault(k.String("ACCESS_COOKIE_NAME"), "fb_access"),
		CookieSecure:       parseBool(k.String("COOKIE_SECURE"), false),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PublicBaseURL:      strings.TrimRight(valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:8080"), "/"),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START"), true),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		PaystackSecretKey:     strings.TrimSpace(k.String("PAYSTACK_SECRET_KEY")),
		PaystackWebhookSecret: strings.TrimSpace(k.String("PAYSTACK_WEBHOOK_SECRET")),
		PaystackBaseURL:       strings.TrimRight(valueOrDefault(k.String("PAYSTACK_BASE_URL"), "https://api.paystack.co"), "/"),
		PaystackTimeout:       parseDuration(k.String("PAYSTACK_TIMEOUT"), "10s"),
		PaystackRetryAttempts: parseInt(k.String("PAYSTACK_RETRY_MAX_ATTEMPTS"), 1),
		PaystackRetryBase:     parseDuration(k.String("PAYSTACK_RETRY_BASE"), "200ms"),

		CircuitGatewayMinRequests:  parseInt(k.String("CIRCUIT_GATEWAY_MIN_REQUESTS"), 10),
		CircuitGatewayFailureRatio: parseFloat(k.String("CIRCUIT_GATEWAY_FAILURE_RATIO"), 0.5),
		CircuitGatewayOpenFor:      parseDuration(k.String("CIRCUIT_GATEWAY_OPEN_FOR"), "30s"),

		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitStatus:  valueOrDefault(k.String("RATE_LIMIT_STATUS"), "120-M"),
		RateLimitWebhook: valueOrDefault(k.String("RATE_LIMIT_WEBHOOK"), "600-M"),
		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),

		ReconcileEnabled:       parseBool(k.String("RECONCILE_ENABLED"), true),
		ReconcileDelay:         parseDuration(k.String("RECONCILE_DELAY"), "10m"),
		ReconcilePendingExpiry: parseDuration(k.String("RECONCILE_PENDING_EXPIRY"), "24h"),
		ReconcileSweepInterval: parseDuration(k.String("RECONCILE_SWEEP_INTERVAL"), "5m"),
		ReconcileStaleAfter:    parseDuration(k.String("RECONCILE_STALE_AFTER"), "30m"),
		WorkerConcurrency:      parseInt(k.String("WORKER_CONCURRENCY"), 5),
	}

	if cfg.PaystackWebhookSecret == "" {
		cfg.PaystackWebhookSecret = cfg.PaystackSecretKey
	}
	if cfg.PaystackRetryAttempts < 1 {
		cfg.PaystackRetryAttempts = 1
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// CallbackURL is where the gateway sends the buyer after checkout.
func (c *Config) CallbackURL() string {
	return c.PublicBaseURL + "/payment/success"
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]*string, len(env))
	for key := range env {
		if prev, ok := os.LookupEnv(key); ok {
			original[key] = &prev
		} else {
			original[key] = nil
		}
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]*string) error {
	var errs []string
	for key, value := range values {
		var err error
		if value == nil {
			err = os.Unsetenv(key)
		} else {
			err = os.Setenv(key, *value)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
