package security_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/farmbridge/internal/payment"
	"github.com/noah-isme/farmbridge/internal/security"
)

func TestBodyLimitKeepsWebhookSignatureValid(t *testing.T) {
	const secret = "sk_test_limit"
	body := []byte(`{"event":"transfer.success","data":{"reference":"tr_9","amount":5000}}`)

	var verified bool
	handler := security.BodyLimit{Max: int64(len(body))}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, int64(len(body)), r.ContentLength)
		verified = payment.VerifySignature(got, r.Header.Get(payment.SignatureHeader), secret)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/paystack/webhook", bytes.NewReader(body))
	req.ContentLength = -1
	req.Header.Set(payment.SignatureHeader, payment.Sign(body, secret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, verified)
}

func TestBodyLimitRejectsOversizedStreams(t *testing.T) {
	called := false
	handler := security.BodyLimit{Max: 16}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/paystack/initiate", strings.NewReader(`{"listingId":"0123456789abcdef"}`))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.False(t, called)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "PAYLOAD_TOO_LARGE", out["code"])
}

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	handler := security.BodyLimit{Max: 5}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{}"))
	req.ContentLength = 100
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestBodyLimitDisabled(t *testing.T) {
	var got string
	handler := security.BodyLimit{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		got = string(data)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64))))
	require.Len(t, got, 64)
}
