package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/farmbridge/internal/db"
	dbgen "github.com/noah-isme/farmbridge/internal/db/gen"
)

func (f *fixture) initiate(t *testing.T, buyer dbgen.User, amount, currency string) (InitiateResult, error) {
	t.Helper()
	return f.svc.Initiate(context.Background(), InitiateRequest{
		BuyerID:   db.UUIDString(buyer.ID),
		ListingID: db.UUIDString(f.listing.ID),
		Amount:    decimal.RequireFromString(amount),
		Currency:  currency,
	})
}

func TestInitiateCreatesPendingPayment(t *testing.T) {
	f := newFixture()
	res, err := f.initiate(t, f.buyer, "150.00", "ngn")
	require.NoError(t, err)
	require.NotEmpty(t, res.AuthorizationURL)

	p := f.repo.payment(res.Reference)
	require.Equal(t, dbgen.PaymentStatusPending, p.Status)
	require.Equal(t, "NGN", p.Currency)
	require.False(t, p.UpdatedAt.Valid)
	require.True(t, db.UUIDEqual(f.farmer.ID, p.SupplierID))

	require.Len(t, f.gateway.initCalls, 1)
	call := f.gateway.initCalls[0]
	require.Equal(t, int64(15000), call.AmountMinor)
	require.Equal(t, "bola@buyer.test", call.Email)
	require.Equal(t, res.Reference, call.Reference)
	require.Equal(t, "http://localhost:8080/payment/success", call.CallbackURL)

	require.Equal(t, []string{res.Reference}, f.enqueuer.refs)
	require.Equal(t, 10*time.Minute, f.enqueuer.delay)
	require.True(t, f.repo.listing(f.listing.ID).IsAvailable)
}

func TestInitiateCommitsPendingRowBeforeCallingGateway(t *testing.T) {
	f := newFixture()
	var seen []dbgen.Payment
	inTx := false
	f.gateway.onInit = func(req InitializeRequest) {
		if !f.repo.mu.TryLock() {
			inTx = true
			return
		}
		defer f.repo.mu.Unlock()
		for _, p := range f.repo.payments {
			seen = append(seen, p)
		}
	}

	res, err := f.initiate(t, f.buyer, "10.50", "usd")
	require.NoError(t, err)
	require.False(t, inTx, "gateway called inside a transaction")
	require.Len(t, seen, 1)
	require.Equal(t, res.Reference, seen[0].TransactionReference)
	require.Equal(t, dbgen.PaymentStatusPending, seen[0].Status)
	require.Equal(t, "USD", seen[0].Currency)

	require.Len(t, f.gateway.initCalls, 1)
	require.Equal(t, int64(1050), f.gateway.initCalls[0].AmountMinor)
	require.Equal(t, "USD", f.gateway.initCalls[0].Currency)
}

func TestInitiateRejectsSelfPurchaseBeforeAmountChecks(t *testing.T) {
	f := newFixture()
	_, err := f.initiate(t, f.farmer, "-1", "JPY")
	require.ErrorIs(t, err, ErrSelfPurchase)
	require.Empty(t, f.gateway.initCalls)
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture()

	_, err := f.initiate(t, f.buyer, "0", "NGN")
	var input *InputError
	require.True(t, errors.As(err, &input))
	require.Equal(t, "Invalid amount", input.Message)

	_, err = f.initiate(t, f.buyer, "10", "JPY")
	require.True(t, errors.As(err, &input))
	require.Equal(t, "Unsupported currency", input.Message)

	f.repo.mu.Lock()
	l := f.repo.listings[f.listing.ID.Bytes]
	l.IsAvailable = false
	f.repo.listings[f.listing.ID.Bytes] = l
	f.repo.mu.Unlock()
	_, err = f.initiate(t, f.buyer, "10", "NGN")
	require.ErrorIs(t, err, ErrListingUnavailable)
	require.ErrorIs(t, err, ErrNotFound)

	require.Empty(t, f.gateway.initCalls)
	require.Empty(t, f.repo.payments)
}

func TestInitiateGatewayFailureMarksPaymentFailed(t *testing.T) {
	cases := []struct {
		name string
		err  *GatewayError
	}{
		{"unavailable", &GatewayError{Kind: GatewayServiceUnavailable, StatusCode: 500}},
		{"rejected", &GatewayError{Kind: GatewayRejected, StatusCode: 200, Message: "Invalid currency"}},
		{"unreachable", &GatewayError{Kind: GatewayUnreachable, Err: context.DeadlineExceeded}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.gateway.initErr = tc.err
			_, err := f.initiate(t, f.buyer, "150.00", "NGN")
			require.ErrorIs(t, err, ErrGatewayFailure)
			var gwErr *GatewayError
			require.True(t, errors.As(err, &gwErr))
			require.Equal(t, tc.err.Kind, gwErr.Kind)

			require.Len(t, f.gateway.initCalls, 1)
			p := f.repo.payment(f.gateway.initCalls[0].Reference)
			require.Equal(t, dbgen.PaymentStatusFailed, p.Status)
			require.True(t, f.repo.listing(f.listing.ID).IsAvailable)
			require.Empty(t, f.enqueuer.refs)
		})
	}
}

func TestInitiateSurvivesEnqueueFailure(t *testing.T) {
	f := newFixture()
	f.enqueuer.err = errors.New("redis down")
	res, err := f.initiate(t, f.buyer, "150.00", "NGN")
	require.NoError(t, err)
	require.Equal(t, dbgen.PaymentStatusPending, f.repo.payment(res.Reference).Status)
}

func TestStatusChecksOwnership(t *testing.T) {
	f := newFixture()
	f.repo.addPayment("fb_own", "150.00", f.buyer, f.listing, dbgen.PaymentStatusPending, time.Now())
	other := f.repo.addUser("Other", "other@buyer.test", dbgen.UserRoleBuyer)
	ctx := context.Background()

	view, err := f.svc.Status(ctx, "fb_own", db.UUIDString(f.buyer.ID))
	require.NoError(t, err)
	require.Equal(t, dbgen.PaymentStatusPending, view.Status)
	require.Nil(t, view.UpdatedAt)

	_, err = f.svc.Status(ctx, "fb_own", db.UUIDString(other.ID))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Status(ctx, "fb_own", db.UUIDString(f.farmer.ID))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Status(ctx, "fb_nope", db.UUIDString(f.buyer.ID))
	require.ErrorIs(t, err, ErrPaymentNotFound)

	_, err = f.engine.MarkCompleted(ctx, "fb_own", SourceWebhook)
	require.NoError(t, err)
	view, err = f.svc.Status(ctx, "fb_own", db.UUIDString(f.buyer.ID))
	require.NoError(t, err)
	require.Equal(t, dbgen.PaymentStatusCompleted, view.Status)
	require.NotNil(t, view.UpdatedAt)
}

func TestDetailAndHistory(t *testing.T) {
	f := newFixture()
	now := time.Now()
	f.repo.addPayment("fb_old", "99.50", f.buyer, f.listing, dbgen.PaymentStatusFailed, now.Add(-time.Hour))
	f.repo.addPayment("fb_new", "150", f.buyer, f.listing, dbgen.PaymentStatusPending, now)
	ctx := context.Background()

	detail, err := f.svc.Detail(ctx, "fb_old", db.UUIDString(f.buyer.ID))
	require.NoError(t, err)
	require.Equal(t, "99.50", detail.Amount)
	require.Equal(t, "Maize", detail.ItemName)
	require.Equal(t, "Ada Farms", detail.SupplierName)

	items, err := f.svc.History(ctx, db.UUIDString(f.buyer.ID), 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "fb_new", items[0].Reference)
	require.Equal(t, "150.00", items[0].Amount)
}
