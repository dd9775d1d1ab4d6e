package app

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/farmbridge/internal/config"
	"github.com/noah-isme/farmbridge/internal/payment"
)

func testConfig(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()
	env := map[string]string{
		"DATABASE_URL":        "postgres://farmbridge@localhost/farmbridge",
		"REDIS_URL":           "redis://localhost:6379/0",
		"JWT_SECRET":          "secret",
		"PAYSTACK_SECRET_KEY": "sk_test",
		"PUBLIC_BASE_URL":     "https://farmbridge.test/",
	}
	for k, v := range overrides {
		env[k] = v
	}
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	return cfg
}

func TestReconcileRetriesCoverPendingExpiry(t *testing.T) {
	cfg := testConfig(t, map[string]string{"RECONCILE_DELAY": "10m", "RECONCILE_PENDING_EXPIRY": "24h"})
	require.Equal(t, 145, reconcileRetries(cfg))

	cfg.ReconcileDelay = 0
	require.Zero(t, reconcileRetries(cfg))
}

func TestPaymentsWiring(t *testing.T) {
	cfg := testConfig(t, nil)
	deps := &Dependencies{Config: cfg, Logger: zerolog.Nop()}

	p := deps.Payments()
	require.Same(t, p.Engine, p.Service.Engine)
	require.Same(t, p.Engine, p.Reconciler.Engine)
	require.Equal(t, "https://farmbridge.test/payment/success", p.Service.CallbackURL)
	require.Equal(t, cfg.PaystackSecretKey, p.Webhook.Secret)
	require.Equal(t, 10*time.Minute, p.Service.ReconcileDelay)

	enq, ok := p.Service.Enqueuer.(payment.AsynqEnqueuer)
	require.True(t, ok)
	require.Equal(t, ReconcileQueue(), enq.Queue)
	require.Nil(t, enq.Client)
	require.Nil(t, enq.Inspector)
}

func TestPaymentsWiringWithoutReconciliation(t *testing.T) {
	cfg := testConfig(t, map[string]string{"RECONCILE_ENABLED": "false"})
	deps := &Dependencies{Config: cfg, Logger: zerolog.Nop()}

	p := deps.Payments()
	require.Nil(t, p.Service.Enqueuer)
	require.NotNil(t, p.Reconciler.Enqueuer)
}
