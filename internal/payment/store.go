package payment

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbgen "github.com/noah-isme/farmbridge/internal/db/gen"
)

// Store is the slice of persistence the payment flows depend on.
type Store interface {
	GetUserByID(ctx context.Context, id pgtype.UUID) (dbgen.User, error)
	GetAvailableListingWithSupplier(ctx context.Context, id pgtype.UUID) (dbgen.ListingWithSupplierRow, error)
	CreatePayment(ctx context.Context, arg dbgen.CreatePaymentParams) (dbgen.Payment, error)
	GetPaymentByReference(ctx context.Context, reference string) (dbgen.Payment, error)
	GetPaymentDetail(ctx context.Context, reference string) (dbgen.PaymentDetailRow, error)
	TransitionPendingPayment(ctx context.Context, arg dbgen.TransitionPendingPaymentParams) (dbgen.Payment, error)
	MarkListingUnavailable(ctx context.Context, id pgtype.UUID) (int64, error)
	ListPaymentsByBuyer(ctx context.Context, arg dbgen.ListPaymentsByBuyerParams) ([]dbgen.Payment, error)
	ListStalePendingPayments(ctx context.Context, arg dbgen.ListStalePendingPaymentsParams) ([]dbgen.Payment, error)
	InsertWebhookEvent(ctx context.Context, arg dbgen.InsertWebhookEventParams) error
}

// TxRunner runs fn against a Store bound to one database transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

// Repository combines plain reads with transactional writes.
type Repository interface {
	Store
	TxRunner
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

// InTx implements TxRunner.
func (r *PgRepository) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(r.Queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
