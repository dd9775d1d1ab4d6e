package listing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbgen "github.com/noah-isme/farmbridge/internal/db/gen"
)

// Store is the listing persistence surface.
type Store interface {
	CreateListing(ctx context.Context, arg dbgen.CreateListingParams) (dbgen.Listing, error)
	GetListingForUpdate(ctx context.Context, id pgtype.UUID) (dbgen.Listing, error)
	ListListingsBySupplier(ctx context.Context, supplierID pgtype.UUID) ([]dbgen.Listing, error)
	SearchAvailableListings(ctx context.Context, arg dbgen.SearchAvailableListingsParams) ([]dbgen.ListingWithSupplierRow, error)
	CountAvailableListings(ctx context.Context, search string) (int64, error)
	UpdateListing(ctx context.Context, arg dbgen.UpdateListingParams) (dbgen.Listing, error)
	DeleteListing(ctx context.Context, id pgtype.UUID) (int64, error)
	ListingHasCompletedPayment(ctx context.Context, listingID pgtype.UUID) (bool, error)
}

// Repository adds transactions to Store.
type Repository interface {
	Store
	InTx(ctx context.Context, fn func(Store) error) error
}

// PgRepository implements Repository on a pgx pool.
type PgRepository struct {
	*dbgen.Queries
	Pool *pgxpool.Pool
}

// NewPgRepository wires generated queries to pool.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{Queries: dbgen.New(pool), Pool: pool}
}

// InTx runs fn in one transaction.
func (r *PgRepository) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(r.Queries.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
