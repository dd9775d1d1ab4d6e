package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/farmbridge/internal/common"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	lim := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 1})
	counted := Handler{Limiter: lim, Key: func(*http.Request) string { return "static" }}.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/transaction-status/fb_1", nil)
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", rr2.Code)
	}
	if rr2.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("unexpected limit header: %q", rr2.Header().Get("X-RateLimit-Limit"))
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestByUserOrIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	if got := ByUserOrIP(req); got != "ip:10.0.0.7" {
		t.Fatalf("unexpected anonymous key %q", got)
	}
	req = req.WithContext(common.WithIdentity(req.Context(), common.Identity{UserID: "buyer-1"}))
	if got := ByUserOrIP(req); got != "user:buyer-1" {
		t.Fatalf("unexpected user key %q", got)
	}
}

func TestRedisLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	lim, err := NewRedisLimiter(client, "2-M", "test:")
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		lctx, err := lim.Get(ctx, "key")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if lctx.Reached {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	lctx, err := lim.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !lctx.Reached {
		t.Fatal("expected third request to be limited")
	}
}

func TestNewRedisLimiterRejectsBadRate(t *testing.T) {
	if _, err := NewRedisLimiter(redis.NewClient(&redis.Options{}), "lots", "x:"); err == nil {
		t.Fatal("expected error for malformed rate")
	}
}

type failingStore struct{ limiter.Store }

func (failingStore) Get(context.Context, string, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errors.New("store down")
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	called := false
	handler := Handler{
		Limiter: limiter.New(failingStore{}, limiter.Rate{Period: time.Second, Limit: 1}),
		OnError: func(error) { called = true },
	}
	rr := httptest.NewRecorder()
	handler.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected handler to proceed on error, got %d", rr.Code)
	}
	if !called {
		t.Fatal("expected OnError callback to be invoked")
	}
}
