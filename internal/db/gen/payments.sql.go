// source: payments.sql

package gen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, transaction_reference, amount, currency, status, supplier_id, buyer_id, listing_id, created_at, updated_at`

const createPayment = `-- name: CreatePayment :one
INSERT INTO payments (transaction_reference, amount, currency, status, supplier_id, buyer_id, listing_id)
VALUES ($1, $2, $3, 'pending', $4, $5, $6)
RETURNING ` + paymentColumns

type CreatePaymentParams struct {
	TransactionReference string         `json:"transaction_reference"`
	Amount               pgtype.Numeric `json:"amount"`
	Currency             string         `json:"currency"`
	SupplierID           pgtype.UUID    `json:"supplier_id"`
	BuyerID              pgtype.UUID    `json:"buyer_id"`
	ListingID            pgtype.UUID    `json:"listing_id"`
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, createPayment,
		arg.TransactionReference,
		arg.Amount,
		arg.Currency,
		arg.SupplierID,
		arg.BuyerID,
		arg.ListingID,
	)
	var i Payment
	err := scanPayment(row, &i)
	return i, err
}

const getPaymentByReference = `-- name: GetPaymentByReference :one
SELECT ` + paymentColumns + ` FROM payments WHERE transaction_reference = $1
`

func (q *Queries) GetPaymentByReference(ctx context.Context, transactionReference string) (Payment, error) {
	row := q.db.QueryRow(ctx, getPaymentByReference, transactionReference)
	var i Payment
	err := scanPayment(row, &i)
	return i, err
}

const transitionPendingPayment = `-- name: TransitionPendingPayment :one
UPDATE payments
SET status = $2, updated_at = now()
WHERE transaction_reference = $1 AND status = 'pending'
RETURNING ` + paymentColumns

type TransitionPendingPaymentParams struct {
	TransactionReference string        `json:"transaction_reference"`
	Status               PaymentStatus `json:"status"`
}

// TransitionPendingPayment returns pgx.ErrNoRows when the reference is
// unknown or the payment is no longer pending.
func (q *Queries) TransitionPendingPayment(ctx context.Context, arg TransitionPendingPaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, transitionPendingPayment, arg.TransactionReference, arg.Status)
	var i Payment
	err := scanPayment(row, &i)
	return i, err
}

const listingHasCompletedPayment = `-- name: ListingHasCompletedPayment :one
SELECT EXISTS (SELECT 1 FROM payments WHERE listing_id = $1 AND status = 'completed')
`

func (q *Queries) ListingHasCompletedPayment(ctx context.Context, listingID pgtype.UUID) (bool, error) {
	row := q.db.QueryRow(ctx, listingHasCompletedPayment, listingID)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const listPaymentsByBuyer = `-- name: ListPaymentsByBuyer :many
SELECT ` + paymentColumns + ` FROM payments WHERE buyer_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

type ListPaymentsByBuyerParams struct {
	BuyerID pgtype.UUID `json:"buyer_id"`
	Limit   int32       `json:"limit"`
	Offset  int32       `json:"offset"`
}

func (q *Queries) ListPaymentsByBuyer(ctx context.Context, arg ListPaymentsByBuyerParams) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByBuyer, arg.BuyerID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Payment{}
	for rows.Next() {
		var i Payment
		if err := scanPayment(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listStalePendingPayments = `-- name: ListStalePendingPayments :many
SELECT ` + paymentColumns + ` FROM payments
WHERE status = 'pending' AND created_at < $1
ORDER BY created_at ASC
LIMIT $2
`

type ListStalePendingPaymentsParams struct {
	CreatedBefore pgtype.Timestamptz `json:"created_before"`
	Limit         int32              `json:"limit"`
}

func (q *Queries) ListStalePendingPayments(ctx context.Context, arg ListStalePendingPaymentsParams) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listStalePendingPayments, arg.CreatedBefore, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Payment{}
	for rows.Next() {
		var i Payment
		if err := scanPayment(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getPaymentDetail = `-- name: GetPaymentDetail :one
SELECT p.id, p.transaction_reference, p.amount, p.currency, p.status, p.supplier_id, p.buyer_id, p.listing_id, p.created_at, p.updated_at,
       l.item_name, u.name AS supplier_name
FROM payments p
JOIN listings l ON l.id = p.listing_id
JOIN users u ON u.id = p.supplier_id
WHERE p.transaction_reference = $1
`

type PaymentDetailRow struct {
	Payment      Payment `json:"payment"`
	ItemName     string  `json:"item_name"`
	SupplierName string  `json:"supplier_name"`
}

func (q *Queries) GetPaymentDetail(ctx context.Context, transactionReference string) (PaymentDetailRow, error) {
	row := q.db.QueryRow(ctx, getPaymentDetail, transactionReference)
	var i PaymentDetailRow
	err := row.Scan(
		&i.Payment.ID,
		&i.Payment.TransactionReference,
		&i.Payment.Amount,
		&i.Payment.Currency,
		&i.Payment.Status,
		&i.Payment.SupplierID,
		&i.Payment.BuyerID,
		&i.Payment.ListingID,
		&i.Payment.CreatedAt,
		&i.Payment.UpdatedAt,
		&i.ItemName,
		&i.SupplierName,
	)
	return i, err
}

const insertWebhookEvent = `-- name: InsertWebhookEvent :exec
INSERT INTO payment_webhook_events (event, reference, payload, outcome)
VALUES ($1, $2, $3, $4)
`

type InsertWebhookEventParams struct {
	Event     string      `json:"event"`
	Reference pgtype.Text `json:"reference"`
	Payload   []byte      `json:"payload"`
	Outcome   string      `json:"outcome"`
}

func (q *Queries) InsertWebhookEvent(ctx context.Context, arg InsertWebhookEventParams) error {
	_, err := q.db.Exec(ctx, insertWebhookEvent,
		arg.Event,
		arg.Reference,
		arg.Payload,
		arg.Outcome,
	)
	return err
}

func scanPayment(row interface{ Scan(...any) error }, i *Payment) error {
	return row.Scan(
		&i.ID,
		&i.TransactionReference,
		&i.Amount,
		&i.Currency,
		&i.Status,
		&i.SupplierID,
		&i.BuyerID,
		&i.ListingID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
}
