package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/farmbridge/internal/resilience"
)

const defaultPaystackBaseURL = "https://api.paystack.co"

// Doer executes outbound requests. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Paystack implements Gateway against the Paystack REST API.
type Paystack struct {
	SecretKey string
	BaseURL   string
	Client    Doer

	latency metric.Float64Histogram
}

// NewPaystack builds a client and registers its latency instrument on the
// global meter provider.
func NewPaystack(secretKey, baseURL string, client Doer) *Paystack {
	p := &Paystack{SecretKey: secretKey, BaseURL: baseURL, Client: client}
	hist, err := otel.Meter("payment.Paystack").Float64Histogram(
		"paystack.request.duration",
		metric.WithDescription("Latency of Paystack API calls."),
		metric.WithUnit("ms"),
	)
	if err == nil {
		p.latency = hist
	}
	return p
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeBody struct {
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency"`
	Email       string   `json:"email"`
	Reference   string   `json:"reference"`
	CallbackURL string   `json:"callback_url"`
	Metadata    Metadata `json:"metadata"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Reference       string     `json:"reference"`
	Status          string     `json:"status"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	GatewayResponse string     `json:"gateway_response"`
	PaidAt          *time.Time `json:"paid_at"`
}

// InitializeTransaction implements Gateway.
func (p *Paystack) InitializeTransaction(ctx context.Context, req InitializeRequest) (Authorization, error) {
	body, err := json.Marshal(initializeBody{
		Amount:      req.AmountMinor,
		Currency:    req.Currency,
		Email:       req.Email,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return Authorization{}, &GatewayError{Kind: GatewayUnreachable, Message: "encode request", Err: err}
	}
	env, err := p.call(ctx, "initialize", http.MethodPost, "/transaction/initialize", body, false)
	if err != nil {
		return Authorization{}, err
	}
	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.AuthorizationURL == "" {
		return Authorization{}, &GatewayError{Kind: GatewayServiceUnavailable, Message: "malformed initialize response", Err: err}
	}
	if data.Reference == "" {
		data.Reference = req.Reference
	}
	return Authorization{AuthorizationURL: data.AuthorizationURL, AccessCode: data.AccessCode, Reference: data.Reference}, nil
}

// VerifyTransaction implements Gateway. A 4xx answer that carries a provider
// message (unknown reference, for instance) is reported as GatewayRejected.
func (p *Paystack) VerifyTransaction(ctx context.Context, reference string) (Verification, error) {
	env, err := p.call(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, true)
	if err != nil {
		return Verification{}, err
	}
	var data verifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Verification{}, &GatewayError{Kind: GatewayServiceUnavailable, Message: "malformed verify response", Err: err}
	}
	return Verification{
		Reference:       data.Reference,
		Status:          strings.ToLower(strings.TrimSpace(data.Status)),
		AmountMinor:     data.Amount,
		Currency:        strings.ToUpper(data.Currency),
		GatewayResponse: data.GatewayResponse,
		PaidAt:          data.PaidAt,
	}, nil
}

func (p *Paystack) call(ctx context.Context, op, method, path string, body []byte, clientErrorsAreAnswers bool) (env paystackEnvelope, err error) {
	ctx, span := otel.Tracer("payment.Paystack").Start(ctx, "Paystack."+op)
	defer span.End()
	start := time.Now()
	defer func() {
		outcome := "ok"
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			outcome = gwErr.Kind.String()
			span.RecordError(err)
		}
		span.SetAttributes(attribute.String("paystack.outcome", outcome))
		if p.latency != nil {
			p.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
				metric.WithAttributes(attribute.String("operation", op), attribute.String("outcome", outcome)))
		}
	}()

	if strings.TrimSpace(p.SecretKey) == "" || p.Client == nil {
		return env, &GatewayError{Kind: GatewayServiceUnavailable, Message: "payment gateway not configured"}
	}
	base := strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if base == "" {
		base = defaultPaystackBaseURL
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return env, &GatewayError{Kind: GatewayUnreachable, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.Client.Do(ctx, req)
	if err != nil {
		var statusErr *resilience.StatusError
		if errors.As(err, &statusErr) {
			return env, &GatewayError{Kind: GatewayServiceUnavailable, StatusCode: statusErr.StatusCode, Message: statusErr.Status, Err: err}
		}
		return env, &GatewayError{Kind: GatewayUnreachable, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return env, &GatewayError{Kind: GatewayUnreachable, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if clientErrorsAreAnswers && resp.StatusCode < 500 && decodeErr == nil && env.Message != "" {
			return env, &GatewayError{Kind: GatewayRejected, StatusCode: resp.StatusCode, Message: env.Message}
		}
		return env, &GatewayError{Kind: GatewayServiceUnavailable, StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	if decodeErr != nil {
		return env, &GatewayError{Kind: GatewayServiceUnavailable, StatusCode: resp.StatusCode, Message: "malformed response", Err: decodeErr}
	}
	if !env.Status {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = "Payment initialization failed"
		}
		return env, &GatewayError{Kind: GatewayRejected, StatusCode: resp.StatusCode, Message: msg}
	}
	return env, nil
}
