// source: listings.sql

package gen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createListing = `-- name: CreateListing :one
INSERT INTO listings (supplier_id, item_name, quantity, price, currency, contact, is_available)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, supplier_id, item_name, quantity, price, currency, contact, is_available, created_at
`

type CreateListingParams struct {
	SupplierID  pgtype.UUID    `json:"supplier_id"`
	ItemName    string         `json:"item_name"`
	Quantity    string         `json:"quantity"`
	Price       pgtype.Numeric `json:"price"`
	Currency    pgtype.Text    `json:"currency"`
	Contact     string         `json:"contact"`
	IsAvailable bool           `json:"is_available"`
}

func (q *Queries) CreateListing(ctx context.Context, arg CreateListingParams) (Listing, error) {
	row := q.db.QueryRow(ctx, createListing,
		arg.SupplierID,
		arg.ItemName,
		arg.Quantity,
		arg.Price,
		arg.Currency,
		arg.Contact,
		arg.IsAvailable,
	)
	var i Listing
	err := scanListing(row, &i)
	return i, err
}

const getListingByID = `-- name: GetListingByID :one
SELECT id, supplier_id, item_name, quantity, price, currency, contact, is_available, created_at
FROM listings WHERE id = $1
`

func (q *Queries) GetListingByID(ctx context.Context, id pgtype.UUID) (Listing, error) {
	row := q.db.QueryRow(ctx, getListingByID, id)
	var i Listing
	err := scanListing(row, &i)
	return i, err
}

const getListingForUpdate = `-- name: GetListingForUpdate :one
SELECT id, supplier_id, item_name, quantity, price, currency, contact, is_available, created_at
FROM listings WHERE id = $1 FOR UPDATE
`

func (q *Queries) GetListingForUpdate(ctx context.Context, id pgtype.UUID) (Listing, error) {
	row := q.db.QueryRow(ctx, getListingForUpdate, id)
	var i Listing
	err := scanListing(row, &i)
	return i, err
}

const getAvailableListingWithSupplier = `-- name: GetAvailableListingWithSupplier :one
SELECT l.id, l.supplier_id, l.item_name, l.quantity, l.price, l.currency, l.contact, l.is_available, l.created_at,
       u.name AS supplier_name
FROM listings l
JOIN users u ON u.id = l.supplier_id
WHERE l.id = $1 AND l.is_available = TRUE
`

type ListingWithSupplierRow struct {
	Listing      Listing `json:"listing"`
	SupplierName string  `json:"supplier_name"`
}

func (q *Queries) GetAvailableListingWithSupplier(ctx context.Context, id pgtype.UUID) (ListingWithSupplierRow, error) {
	row := q.db.QueryRow(ctx, getAvailableListingWithSupplier, id)
	var i ListingWithSupplierRow
	err := row.Scan(
		&i.Listing.ID,
		&i.Listing.SupplierID,
		&i.Listing.ItemName,
		&i.Listing.Quantity,
		&i.Listing.Price,
		&i.Listing.Currency,
		&i.Listing.Contact,
		&i.Listing.IsAvailable,
		&i.Listing.CreatedAt,
		&i.SupplierName,
	)
	return i, err
}

const listListingsBySupplier = `-- name: ListListingsBySupplier :many
SELECT id, supplier_id, item_name, quantity, price, currency, contact, is_available, created_at
FROM listings WHERE supplier_id = $1
ORDER BY created_at DESC
`

func (q *Queries) ListListingsBySupplier(ctx context.Context, supplierID pgtype.UUID) ([]Listing, error) {
	rows, err := q.db.Query(ctx, listListingsBySupplier, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Listing{}
	for rows.Next() {
		var i Listing
		if err := scanListing(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const searchAvailableListings = `-- name: SearchAvailableListings :many
SELECT l.id, l.supplier_id, l.item_name, l.quantity, l.price, l.currency, l.contact, l.is_available, l.created_at,
       u.name AS supplier_name
FROM listings l
JOIN users u ON u.id = l.supplier_id
WHERE l.is_available = TRUE
  AND ($1::text = '' OR l.item_name ILIKE '%' || $1::text || '%')
ORDER BY l.created_at DESC
LIMIT $2 OFFSET $3
`

type SearchAvailableListingsParams struct {
	Search string `json:"search"`
	Limit  int32  `json:"limit"`
	Offset int32  `json:"offset"`
}

func (q *Queries) SearchAvailableListings(ctx context.Context, arg SearchAvailableListingsParams) ([]ListingWithSupplierRow, error) {
	rows, err := q.db.Query(ctx, searchAvailableListings, arg.Search, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListingWithSupplierRow{}
	for rows.Next() {
		var i ListingWithSupplierRow
		if err := rows.Scan(
			&i.Listing.ID,
			&i.Listing.SupplierID,
			&i.Listing.ItemName,
			&i.Listing.Quantity,
			&i.Listing.Price,
			&i.Listing.Currency,
			&i.Listing.Contact,
			&i.Listing.IsAvailable,
			&i.Listing.CreatedAt,
			&i.SupplierName,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countAvailableListings = `-- name: CountAvailableListings :one
SELECT count(*) FROM listings
WHERE is_available = TRUE AND ($1::text = '' OR item_name ILIKE '%' || $1::text || '%')
`

func (q *Queries) CountAvailableListings(ctx context.Context, search string) (int64, error) {
	row := q.db.QueryRow(ctx, countAvailableListings, search)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const updateListing = `-- name: UpdateListing :one
UPDATE listings
SET item_name = $2, quantity = $3, price = $4, currency = $5, contact = $6, is_available = $7
WHERE id = $1
RETURNING id, supplier_id, item_name, quantity, price, currency, contact, is_available, created_at
`

type UpdateListingParams struct {
	ID          pgtype.UUID    `json:"id"`
	ItemName    string         `json:"item_name"`
	Quantity    string         `json:"quantity"`
	Price       pgtype.Numeric `json:"price"`
	Currency    pgtype.Text    `json:"currency"`
	Contact     string         `json:"contact"`
	IsAvailable bool           `json:"is_available"`
}

func (q *Queries) UpdateListing(ctx context.Context, arg UpdateListingParams) (Listing, error) {
	row := q.db.QueryRow(ctx, updateListing,
		arg.ID,
		arg.ItemName,
		arg.Quantity,
		arg.Price,
		arg.Currency,
		arg.Contact,
		arg.IsAvailable,
	)
	var i Listing
	err := scanListing(row, &i)
	return i, err
}

const markListingUnavailable = `-- name: MarkListingUnavailable :execrows
UPDATE listings SET is_available = FALSE WHERE id = $1
`

func (q *Queries) MarkListingUnavailable(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, markListingUnavailable, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteListing = `-- name: DeleteListing :execrows
DELETE FROM listings WHERE id = $1
`

func (q *Queries) DeleteListing(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteListing, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func scanListing(row interface{ Scan(...any) error }, i *Listing) error {
	return row.Scan(
		&i.ID,
		&i.SupplierID,
		&i.ItemName,
		&i.Quantity,
		&i.Price,
		&i.Currency,
		&i.Contact,
		&i.IsAvailable,
		&i.CreatedAt,
	)
}
