package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	dbgen "github.com/noah-isme/farmbridge/internal/db/gen"
	"github.com/noah-isme/farmbridge/internal/obs"
)

// Outcome reports what a transition request did.
type Outcome string

const (
	OutcomeTransitioned     Outcome = "transitioned"
	OutcomeAlreadyProcessed Outcome = "already_processed"
)

// Source names the caller that asked for a transition.
type Source string

const (
	SourceWebhook    Source = "webhook"
	SourceInitiation Source = "initiation"
	SourceReconciler Source = "reconciler"
	SourceCLI        Source = "cli"
)

// Transition is the result of an engine call. Payment holds the row after
// the call; for OutcomeAlreadyProcessed it is the row as found.
type Transition struct {
	Outcome Outcome
	Payment dbgen.Payment
}

// Engine applies the only two legal state changes, pending to completed and
// pending to failed. Each call runs in one database transaction and relies on
// the conditional update, so concurrent callers see exactly one
// OutcomeTransitioned per reference.
type Engine struct {
	Repo Repository
}

// NewEngine returns an engine over repo.
func NewEngine(repo Repository) *Engine {
	return &Engine{Repo: repo}
}

// MarkCompleted moves a pending payment to completed and flags its listing
// unavailable in the same transaction.
func (e *Engine) MarkCompleted(ctx context.Context, reference string, source Source) (Transition, error) {
	return e.transition(ctx, reference, dbgen.PaymentStatusCompleted, source)
}

// MarkFailed moves a pending payment to failed.
func (e *Engine) MarkFailed(ctx context.Context, reference string, source Source) (Transition, error) {
	return e.transition(ctx, reference, dbgen.PaymentStatusFailed, source)
}

func (e *Engine) transition(ctx context.Context, reference string, to dbgen.PaymentStatus, source Source) (Transition, error) {
	if e == nil || e.Repo == nil {
		return Transition{}, ErrNotConfigured
	}
	ctx, span := otel.Tracer("payment.Engine").Start(ctx, "Engine.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.reference", reference),
		attribute.String("payment.to", string(to)),
		attribute.String("payment.source", string(source)),
	)

	var result Transition
	err := e.Repo.InTx(ctx, func(s Store) error {
		updated, err := s.TransitionPendingPayment(ctx, dbgen.TransitionPendingPaymentParams{
			TransactionReference: reference,
			Status:               to,
		})
		if errors.Is(err, pgx.ErrNoRows) {
			current, getErr := s.GetPaymentByReference(ctx, reference)
			if errors.Is(getErr, pgx.ErrNoRows) {
				return ErrPaymentNotFound
			}
			if getErr != nil {
				return fmt.Errorf("load payment: %w", getErr)
			}
			result = Transition{Outcome: OutcomeAlreadyProcessed, Payment: current}
			return nil
		}
		if err != nil {
			return fmt.Errorf("transition payment: %w", err)
		}
		if to == dbgen.PaymentStatusCompleted {
			if _, err := s.MarkListingUnavailable(ctx, updated.ListingID); err != nil {
				return fmt.Errorf("mark listing unavailable: %w", err)
			}
		}
		result = Transition{Outcome: OutcomeTransitioned, Payment: updated}
		return nil
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrPaymentNotFound) {
			outcome = "not_found"
		}
		span.RecordError(err)
		e.count(to, source, outcome)
		return Transition{}, err
	}

	span.SetAttributes(attribute.String("payment.outcome", string(result.Outcome)))
	e.count(to, source, string(result.Outcome))
	logger := zerolog.Ctx(ctx)
	switch {
	case result.Outcome == OutcomeTransitioned:
		logger.Info().
			Str("reference", reference).
			Str("from", string(dbgen.PaymentStatusPending)).
			Str("to", string(to)).
			Str("source", string(source)).
			Msg("payment_transition")
	case to == dbgen.PaymentStatusCompleted && result.Payment.Status == dbgen.PaymentStatusFailed:
		logger.Warn().
			Str("reference", reference).
			Str("source", string(source)).
			Msg("payment_late_success")
		if obs.PaymentLateSuccessTotal != nil {
			obs.PaymentLateSuccessTotal.Inc()
		}
	}
	return result, nil
}

func (e *Engine) count(to dbgen.PaymentStatus, source Source, outcome string) {
	if obs.PaymentTransitionTotal != nil {
		obs.PaymentTransitionTotal.WithLabelValues(string(to), string(source), outcome).Inc()
	}
}
