package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/farmbridge/internal/common"
	"github.com/noah-isme/farmbridge/internal/db"
	dbgen "github.com/noah-isme/farmbridge/internal/db/gen"
	"github.com/noah-isme/farmbridge/internal/obs"
)

// EventLog stores signature-valid webhook deliveries for audit.
type EventLog interface {
	InsertWebhookEvent(ctx context.Context, arg dbgen.InsertWebhookEventParams) error
}

// Webhook receives gateway callbacks. Only requests carrying a valid
// signature over the raw body reach the engine.
type Webhook struct {
	Engine    *Engine
	Events    EventLog
	Secret    string
	Replay    redis.Cmdable
	ReplayTTL time.Duration
}

const (
	webhookSuccess          = "success"
	webhookAlreadyProcessed = "already_processed"
	webhookReceived         = "received"
)

// Handle implements POST /paystack/webhook.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.count("unreadable", "rejected")
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "Unable to read payload", nil)
		return
	}
	signature := strings.TrimSpace(r.Header.Get(SignatureHeader))
	if signature == "" {
		logger.Warn().Msg("webhook received without signature")
		h.count("unsigned", "rejected")
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "No signature provided", nil)
		return
	}
	if strings.TrimSpace(h.Secret) == "" || h.Engine == nil {
		logger.Error().Msg("webhook secret not configured")
		h.count("unsigned", "misconfigured")
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "Configuration error", nil)
		return
	}
	if !VerifySignature(body, signature, h.Secret) {
		logger.Warn().Msg("invalid webhook signature")
		h.count("unsigned", "rejected")
		common.JSONError(w, http.StatusForbidden, common.CodeForbidden, "Invalid signature", nil)
		return
	}
	event, err := ParseEvent(body)
	if err != nil {
		logger.Error().Err(err).Msg("invalid JSON in webhook payload")
		h.count("malformed", "rejected")
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "Invalid JSON", nil)
		return
	}

	replayKey := common.DigestKey("wh:paystack", string(body))
	if h.seen(ctx, replayKey) {
		h.count(event.EventName(), webhookAlreadyProcessed)
		common.JSON(w, http.StatusOK, map[string]string{"status": webhookAlreadyProcessed})
		return
	}

	status, outcome, err := h.apply(ctx, event)
	if err != nil {
		logger.Error().Err(err).Str("reference", event.EventReference()).Msg("error processing webhook")
		h.record(ctx, event, body, "error")
		h.count(event.EventName(), "error")
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "Internal server error", nil)
		return
	}
	h.record(ctx, event, body, outcome)
	if status == webhookSuccess || status == webhookAlreadyProcessed {
		h.remember(ctx, replayKey)
	}
	h.count(event.EventName(), outcome)
	common.JSON(w, http.StatusOK, map[string]string{"status": status})
}

// apply returns the response status and the audit outcome for event.
func (h Webhook) apply(ctx context.Context, event Event) (string, string, error) {
	logger := zerolog.Ctx(ctx)
	switch ev := event.(type) {
	case ChargeSuccess:
		if ev.Status != "success" || ev.Reference == "" {
			return webhookReceived, "ignored", nil
		}
		res, err := h.Engine.MarkCompleted(ctx, ev.Reference, SourceWebhook)
		if errors.Is(err, ErrPaymentNotFound) {
			logger.Warn().Str("reference", ev.Reference).Msg("payment record not found")
			return webhookAlreadyProcessed, "unknown_reference", nil
		}
		if err != nil {
			return "", "", err
		}
		if res.Outcome == OutcomeTransitioned {
			return webhookSuccess, string(OutcomeTransitioned), nil
		}
		if res.Payment.Status == dbgen.PaymentStatusFailed {
			return webhookAlreadyProcessed, "late_success", nil
		}
		return webhookAlreadyProcessed, string(OutcomeAlreadyProcessed), nil
	case ChargeFailed:
		if ev.Reference == "" {
			return webhookReceived, "ignored", nil
		}
		res, err := h.Engine.MarkFailed(ctx, ev.Reference, SourceWebhook)
		if errors.Is(err, ErrPaymentNotFound) {
			return webhookReceived, "unknown_reference", nil
		}
		if err != nil {
			return "", "", err
		}
		return webhookReceived, string(res.Outcome), nil
	default:
		return webhookReceived, "ignored", nil
	}
}

func (h Webhook) seen(ctx context.Context, key string) bool {
	if h.Replay == nil || h.ReplayTTL <= 0 {
		return false
	}
	n, err := h.Replay.Exists(ctx, key).Result()
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("webhook replay lookup")
		return false
	}
	return n > 0
}

func (h Webhook) remember(ctx context.Context, key string) {
	if h.Replay == nil || h.ReplayTTL <= 0 {
		return
	}
	if err := h.Replay.Set(ctx, key, "1", h.ReplayTTL).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("webhook replay store")
	}
}

func (h Webhook) record(ctx context.Context, event Event, body []byte, outcome string) {
	if h.Events == nil {
		return
	}
	err := h.Events.InsertWebhookEvent(context.WithoutCancel(ctx), dbgen.InsertWebhookEventParams{
		Event:     event.EventName(),
		Reference: db.Text(event.EventReference()),
		Payload:   body,
		Outcome:   outcome,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("store webhook event")
	}
}

func (h Webhook) count(event, result string) {
	if obs.PaymentWebhookTotal == nil {
		return
	}
	switch event {
	case EventChargeSuccess, EventChargeFailed:
	default:
		if event != "unsigned" && event != "malformed" && event != "unreadable" {
			event = "other"
		}
	}
	obs.PaymentWebhookTotal.WithLabelValues(event, result).Inc()
}
