package gen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type Querier interface {
	CountAvailableListings(ctx context.Context, search string) (int64, error)
	CreateListing(ctx context.Context, arg CreateListingParams) (Listing, error)
	CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error)
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	DeleteListing(ctx context.Context, id pgtype.UUID) (int64, error)
	GetAvailableListingWithSupplier(ctx context.Context, id pgtype.UUID) (ListingWithSupplierRow, error)
	GetListingByID(ctx context.Context, id pgtype.UUID) (Listing, error)
	GetListingForUpdate(ctx context.Context, id pgtype.UUID) (Listing, error)
	GetPaymentByReference(ctx context.Context, transactionReference string) (Payment, error)
	GetPaymentDetail(ctx context.Context, transactionReference string) (PaymentDetailRow, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id pgtype.UUID) (User, error)
	InsertWebhookEvent(ctx context.Context, arg InsertWebhookEventParams) error
	ListListingsBySupplier(ctx context.Context, supplierID pgtype.UUID) ([]Listing, error)
	ListPaymentsByBuyer(ctx context.Context, arg ListPaymentsByBuyerParams) ([]Payment, error)
	ListStalePendingPayments(ctx context.Context, arg ListStalePendingPaymentsParams) ([]Payment, error)
	ListingHasCompletedPayment(ctx context.Context, listingID pgtype.UUID) (bool, error)
	MarkListingUnavailable(ctx context.Context, id pgtype.UUID) (int64, error)
	SearchAvailableListings(ctx context.Context, arg SearchAvailableListingsParams) ([]ListingWithSupplierRow, error)
	TransitionPendingPayment(ctx context.Context, arg TransitionPendingPaymentParams) (Payment, error)
	UpdateListing(ctx context.Context, arg UpdateListingParams) (Listing, error)
}

var _ Querier = (*Queries)(nil)
