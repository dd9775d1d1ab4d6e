package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/farmbridge/internal/db"
	dbgen "github.com/noah-isme/farmbridge/internal/db/gen"
	"github.com/noah-isme/farmbridge/internal/obs"
)

// Enqueuer schedules a later gateway verification for a reference.
type Enqueuer interface {
	EnqueueReconcile(ctx context.Context, reference string, delay time.Duration) error
}

// Service coordinates checkout initiation and buyer-facing reads.
type Service struct {
	Repo           Repository
	Gateway        Gateway
	Engine         *Engine
	Enqueuer       Enqueuer
	CallbackURL    string
	ReconcileDelay time.Duration
}

// InitiateRequest is a buyer's request to pay for a listing.
type InitiateRequest struct {
	BuyerID   string
	ListingID string
	Amount    decimal.Decimal
	Currency  string
}

// InitiateResult points the buyer at the hosted checkout page.
type InitiateResult struct {
	AuthorizationURL string
	Reference        string
}

// StatusView is what the polling endpoint exposes.
type StatusView struct {
	Status    dbgen.PaymentStatus `json:"status"`
	UpdatedAt *time.Time          `json:"updated_at"`
}

// DetailView is the transaction page payload.
type DetailView struct {
	Reference    string              `json:"reference"`
	Status       dbgen.PaymentStatus `json:"status"`
	Amount       string              `json:"amount"`
	Currency     string              `json:"currency"`
	ItemName     string              `json:"item_name"`
	SupplierName string              `json:"supplier_name"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    *time.Time          `json:"updated_at"`
}

// HistoryItem is one row of a buyer's payment history.
type HistoryItem struct {
	Reference string              `json:"reference"`
	Status    dbgen.PaymentStatus `json:"status"`
	Amount    string              `json:"amount"`
	Currency  string              `json:"currency"`
	ListingID string              `json:"listing_id"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt *time.Time          `json:"updated_at"`
}

// Initiate validates the purchase, persists a pending payment and opens a
// checkout with the gateway. The pending row is committed before the gateway
// is called, so every reference the gateway knows exists locally.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	var zero InitiateResult
	if s == nil || s.Repo == nil || s.Gateway == nil || s.Engine == nil {
		return zero, ErrNotConfigured
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Initiate")
	defer span.End()

	currencyLabel := strings.ToUpper(strings.TrimSpace(req.Currency))
	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.initiation.result", result))
		if obs.PaymentInitiationTotal != nil {
			if _, ok := supportedCurrencies[currencyLabel]; !ok {
				currencyLabel = "other"
			}
			obs.PaymentInitiationTotal.WithLabelValues(currencyLabel, result).Inc()
		}
	}()

	listingID, err := db.ToUUID(req.ListingID)
	if err != nil {
		result = "not_found"
		return zero, ErrListingUnavailable
	}
	buyerID, err := db.ToUUID(req.BuyerID)
	if err != nil {
		result = "not_found"
		return zero, ErrBuyerNotFound
	}

	row, err := s.Repo.GetAvailableListingWithSupplier(ctx, listingID)
	if errors.Is(err, pgx.ErrNoRows) {
		result = "not_found"
		return zero, ErrListingUnavailable
	}
	if err != nil {
		return zero, fmt.Errorf("load listing: %w", err)
	}
	listing := row.Listing
	if db.UUIDEqual(listing.SupplierID, buyerID) {
		result = "self_purchase"
		return zero, ErrSelfPurchase
	}

	if err := ValidateAmount(req.Amount); err != nil {
		result = "invalid"
		return zero, err
	}
	currency, ok := NormalizeCurrency(req.Currency)
	if !ok {
		result = "invalid"
		return zero, invalid("Unsupported currency")
	}

	buyer, err := s.Repo.GetUserByID(ctx, buyerID)
	if errors.Is(err, pgx.ErrNoRows) {
		result = "not_found"
		return zero, ErrBuyerNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("load buyer: %w", err)
	}

	reference := NewReference()
	span.SetAttributes(attribute.String("payment.reference", reference))
	if _, err := s.Repo.CreatePayment(ctx, dbgen.CreatePaymentParams{
		TransactionReference: reference,
		Amount:               db.Numeric(req.Amount),
		Currency:             currency,
		SupplierID:           listing.SupplierID,
		BuyerID:              buyerID,
		ListingID:            listing.ID,
	}); err != nil {
		return zero, fmt.Errorf("create payment: %w", err)
	}

	logger := zerolog.Ctx(ctx)
	auth, gwErr := s.Gateway.InitializeTransaction(ctx, InitializeRequest{
		AmountMinor: MinorUnits(req.Amount),
		Currency:    currency,
		Email:       buyer.Email,
		Reference:   reference,
		CallbackURL: s.CallbackURL,
		Metadata: Metadata{
			ListingID:  req.ListingID,
			BuyerID:    req.BuyerID,
			SupplierID: db.UUIDString(listing.SupplierID),
			ItemName:   listing.ItemName,
		},
	})
	if gwErr != nil {
		span.RecordError(gwErr)
		result = "gateway_failure"
		// The buyer may have cancelled; the row must still leave pending.
		if _, err := s.Engine.MarkFailed(context.WithoutCancel(ctx), reference, SourceInitiation); err != nil {
			logger.Error().Err(err).Str("reference", reference).Msg("mark failed after gateway error")
		}
		return zero, fmt.Errorf("%w: %w", ErrGatewayFailure, gwErr)
	}

	if s.Enqueuer != nil {
		err := s.Enqueuer.EnqueueReconcile(ctx, reference, s.ReconcileDelay)
		switch {
		case errors.Is(err, ErrAlreadyQueued):
			logger.Debug().Str("reference", reference).Msg("reconcile already queued")
		case err != nil:
			logger.Warn().Err(err).Str("reference", reference).Msg("enqueue reconcile")
		}
	}
	result = "success"
	return InitiateResult{AuthorizationURL: auth.AuthorizationURL, Reference: reference}, nil
}

// Status returns the polling view of a payment owned by requesterID.
func (s *Service) Status(ctx context.Context, reference, requesterID string) (StatusView, error) {
	p, err := s.owned(ctx, reference, requesterID)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{Status: p.Status, UpdatedAt: db.TimePtr(p.UpdatedAt)}, nil
}

// Detail returns the transaction page view of a payment owned by requesterID.
func (s *Service) Detail(ctx context.Context, reference, requesterID string) (DetailView, error) {
	if s == nil || s.Repo == nil {
		return DetailView{}, ErrNotConfigured
	}
	row, err := s.Repo.GetPaymentDetail(ctx, reference)
	if errors.Is(err, pgx.ErrNoRows) {
		return DetailView{}, ErrPaymentNotFound
	}
	if err != nil {
		return DetailView{}, fmt.Errorf("load payment detail: %w", err)
	}
	if err := checkOwner(row.Payment, requesterID); err != nil {
		return DetailView{}, err
	}
	p := row.Payment
	return DetailView{
		Reference:    p.TransactionReference,
		Status:       p.Status,
		Amount:       formatAmount(p),
		Currency:     p.Currency,
		ItemName:     row.ItemName,
		SupplierName: row.SupplierName,
		CreatedAt:    p.CreatedAt.Time,
		UpdatedAt:    db.TimePtr(p.UpdatedAt),
	}, nil
}

// History lists the buyer's payments, newest first.
func (s *Service) History(ctx context.Context, buyerID string, limit, offset int) ([]HistoryItem, error) {
	if s == nil || s.Repo == nil {
		return nil, ErrNotConfigured
	}
	id, err := db.ToUUID(buyerID)
	if err != nil {
		return nil, invalid("invalid user id")
	}
	rows, err := s.Repo.ListPaymentsByBuyer(ctx, dbgen.ListPaymentsByBuyerParams{
		BuyerID: id,
		Limit:   int32(limit),
		Offset:  int32(offset),
	})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	items := make([]HistoryItem, 0, len(rows))
	for _, p := range rows {
		items = append(items, HistoryItem{
			Reference: p.TransactionReference,
			Status:    p.Status,
			Amount:    formatAmount(p),
			Currency:  p.Currency,
			ListingID: db.UUIDString(p.ListingID),
			CreatedAt: p.CreatedAt.Time,
			UpdatedAt: db.TimePtr(p.UpdatedAt),
		})
	}
	return items, nil
}

// Exists reports whether a payment carries reference. It never mutates state.
func (s *Service) Exists(ctx context.Context, reference string) (bool, error) {
	if s == nil || s.Repo == nil {
		return false, ErrNotConfigured
	}
	_, err := s.Repo.GetPaymentByReference(ctx, reference)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) owned(ctx context.Context, reference, requesterID string) (dbgen.Payment, error) {
	if s == nil || s.Repo == nil {
		return dbgen.Payment{}, ErrNotConfigured
	}
	p, err := s.Repo.GetPaymentByReference(ctx, reference)
	if errors.Is(err, pgx.ErrNoRows) {
		return dbgen.Payment{}, ErrPaymentNotFound
	}
	if err != nil {
		return dbgen.Payment{}, fmt.Errorf("load payment: %w", err)
	}
	if err := checkOwner(p, requesterID); err != nil {
		return dbgen.Payment{}, err
	}
	return p, nil
}

func checkOwner(p dbgen.Payment, requesterID string) error {
	id, err := db.ToUUID(requesterID)
	if err != nil || !db.UUIDEqual(p.BuyerID, id) {
		return ErrForbidden
	}
	return nil
}

func formatAmount(p dbgen.Payment) string {
	amount, err := db.Decimal(p.Amount)
	if err != nil {
		return ""
	}
	return amount.StringFixed(2)
}
