package listing

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

	"github.com/noah-isme/farmbridge/internal/common"
	"github.com/noah-isme/farmbridge/internal/db"
	dbgen "github.com/noah-isme/farmbridge/internal/db/gen"
	"github.com/noah-isme/farmbridge/internal/payment"
)

const defaultCurrency = "USD"

var maxPrice = decimal.RequireFromString("99999999.99")

var (
	// ErrNotFound covers both missing listings and listings owned by someone else.
	ErrNotFound = errors.New("listing not found")
	// ErrSold is returned when changing availability of a listing that has a completed payment.
	ErrSold = errors.New("listing already sold")
	// ErrReferenced is returned when deleting a listing that payments point to.
	ErrReferenced = errors.New("listing has payments")
)

// Service manages farmer listings and the buyer-facing catalogue.
type Service struct {
	Repo Repository
}

// View is a listing as returned to its owner.
type View struct {
	ID          string    `json:"id"`
	ItemName    string    `json:"item_name"`
	Quantity    string    `json:"quantity"`
	Price       *string   `json:"price"`
	Currency    string    `json:"currency"`
	Contact     string    `json:"contact"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
}

// CatalogueItem is an available listing with its supplier's name.
type CatalogueItem struct {
	View
	SupplierID   string `json:"supplier_id"`
	SupplierName string `json:"supplier_name"`
}

// CreateInput holds the fields of a new listing.
type CreateInput struct {
	ItemName    string           `json:"item_name" validate:"required"`
	Quantity    string           `json:"quantity" validate:"required"`
	Price       *decimal.Decimal `json:"price"`
	Currency    string           `json:"currency"`
	Contact     string           `json:"contact" validate:"required"`
	IsAvailable *bool            `json:"is_available"`
}

// UpdateInput holds a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	ItemName    *string          `json:"item_name"`
	Quantity    *string          `json:"quantity"`
	Price       *decimal.Decimal `json:"price"`
	Currency    *string          `json:"currency"`
	Contact     *string          `json:"contact"`
	IsAvailable *bool            `json:"is_available"`
}

// Create stores a listing owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (View, error) {
	if s == nil || s.Repo == nil {
		return View{}, errors.New("listing service not configured")
	}
	ctx, span := otel.Tracer("listing.Service").Start(ctx, "ListingService.Create")
	defer span.End()

	owner, err := db.ToUUID(ownerID)
	if err != nil {
		return View{}, common.Unauthorized("Authentication required")
	}
	itemName, quantity, contact := strings.TrimSpace(in.ItemName), strings.TrimSpace(in.Quantity), strings.TrimSpace(in.Contact)
	if itemName == "" || quantity == "" || contact == "" {
		return View{}, common.Validation("Please fill in all required fields.", nil)
	}
	if err := validatePrice(in.Price); err != nil {
		return View{}, err
	}
	currency := defaultCurrency
	if strings.TrimSpace(in.Currency) != "" {
		c, ok := payment.NormalizeCurrency(in.Currency)
		if !ok {
			return View{}, common.Validation("Unsupported currency", nil)
		}
		currency = c
	}
	available := true
	if in.IsAvailable != nil {
		available = *in.IsAvailable
	}
	l, err := s.Repo.CreateListing(ctx, dbgen.CreateListingParams{
		SupplierID:  owner,
		ItemName:    itemName,
		Quantity:    quantity,
		Price:       db.NullableNumeric(in.Price),
		Currency:    db.Text(currency),
		Contact:     contact,
		IsAvailable: available,
	})
	if err != nil {
		return View{}, fmt.Errorf("create listing: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("listing_id", db.UUIDString(l.ID)).Msg("listing_created")
	return toView(l), nil
}

// Mine lists ownerID's listings, newest first.
func (s *Service) Mine(ctx context.Context, ownerID string) ([]View, error) {
	owner, err := db.ToUUID(ownerID)
	if err != nil {
		return nil, common.Unauthorized("Authentication required")
	}
	rows, err := s.Repo.ListListingsBySupplier(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	out := make([]View, 0, len(rows))
	for _, l := range rows {
		out = append(out, toView(l))
	}
	return out, nil
}

// Search returns available listings whose item name contains search,
// case-insensitively, together with the total match count.
func (s *Service) Search(ctx context.Context, search string, limit, offset int) ([]CatalogueItem, int64, error) {
	pattern := escapeLike(strings.TrimSpace(search))
	rows, err := s.Repo.SearchAvailableListings(ctx, dbgen.SearchAvailableListingsParams{
		Search: pattern,
		Limit:  int32(limit),
		Offset: int32(offset),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("search listings: %w", err)
	}
	total, err := s.Repo.CountAvailableListings(ctx, pattern)
	if err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}
	out := make([]CatalogueItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, CatalogueItem{
			View:         toView(row.Listing),
			SupplierID:   db.UUIDString(row.Listing.SupplierID),
			SupplierName: row.SupplierName,
		})
	}
	return out, total, nil
}

// Update applies in to a listing owned by ownerID. Once a listing has a
// completed payment its availability is fixed.
func (s *Service) Update(ctx context.Context, ownerID, listingID string, in UpdateInput) (View, error) {
	ctx, span := otel.Tracer("listing.Service").Start(ctx, "ListingService.Update")
	defer span.End()

	var out dbgen.Listing
	err := s.Repo.InTx(ctx, func(st Store) error {
		current, err := s.owned(ctx, st, ownerID, listingID)
		if err != nil {
			return err
		}
		next := dbgen.UpdateListingParams{
			ID:          current.ID,
			ItemName:    current.ItemName,
			Quantity:    current.Quantity,
			Price:       current.Price,
			Currency:    current.Currency,
			Contact:     current.Contact,
			IsAvailable: current.IsAvailable,
		}
		if in.ItemName != nil && strings.TrimSpace(*in.ItemName) != "" {
			next.ItemName = strings.TrimSpace(*in.ItemName)
		}
		if in.Quantity != nil && strings.TrimSpace(*in.Quantity) != "" {
			next.Quantity = strings.TrimSpace(*in.Quantity)
		}
		if in.Contact != nil && strings.TrimSpace(*in.Contact) != "" {
			next.Contact = strings.TrimSpace(*in.Contact)
		}
		if in.Price != nil {
			if err := validatePrice(in.Price); err != nil {
				return err
			}
			next.Price = db.NullableNumeric(in.Price)
		}
		if in.Currency != nil {
			c, ok := payment.NormalizeCurrency(*in.Currency)
			if !ok {
				return common.Validation("Unsupported currency", nil)
			}
			next.Currency = db.Text(c)
		}
		if in.IsAvailable != nil && *in.IsAvailable != current.IsAvailable {
			sold, err := st.ListingHasCompletedPayment(ctx, current.ID)
			if err != nil {
				return fmt.Errorf("check listing payments: %w", err)
			}
			if sold {
				return ErrSold
			}
			next.IsAvailable = *in.IsAvailable
		}
		out, err = st.UpdateListing(ctx, next)
		if err != nil {
			return fmt.Errorf("update listing: %w", err)
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return toView(out), nil
}

// Delete removes a listing owned by ownerID. Listings that payments
// reference are kept.
func (s *Service) Delete(ctx context.Context, ownerID, listingID string) error {
	return s.Repo.InTx(ctx, func(st Store) error {
		current, err := s.owned(ctx, st, ownerID, listingID)
		if err != nil {
			return err
		}
		if _, err := st.DeleteListing(ctx, current.ID); err != nil {
			if db.IsForeignKeyViolation(err) {
				return ErrReferenced
			}
			return fmt.Errorf("delete listing: %w", err)
		}
		zerolog.Ctx(ctx).Info().Str("listing_id", listingID).Msg("listing_deleted")
		return nil
	})
}

func (s *Service) owned(ctx context.Context, st Store, ownerID, listingID string) (dbgen.Listing, error) {
	owner, err := db.ToUUID(ownerID)
	if err != nil {
		return dbgen.Listing{}, ErrNotFound
	}
	id, err := db.ToUUID(listingID)
	if err != nil {
		return dbgen.Listing{}, ErrNotFound
	}
	l, err := st.GetListingForUpdate(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return dbgen.Listing{}, ErrNotFound
	}
	if err != nil {
		return dbgen.Listing{}, fmt.Errorf("load listing: %w", err)
	}
	if !db.UUIDEqual(l.SupplierID, owner) {
		return dbgen.Listing{}, ErrNotFound
	}
	return l, nil
}

func validatePrice(price *decimal.Decimal) error {
	if price == nil {
		return nil
	}
	if price.IsNegative() || price.GreaterThan(maxPrice) || !price.Equal(price.Round(2)) {
		return common.Validation("Invalid price", nil)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func toView(l dbgen.Listing) View {
	v := View{
		ID:          db.UUIDString(l.ID),
		ItemName:    l.ItemName,
		Quantity:    l.Quantity,
		Currency:    defaultCurrency,
		Contact:     l.Contact,
		IsAvailable: l.IsAvailable,
		CreatedAt:   l.CreatedAt.Time,
	}
	if l.Currency.Valid {
		v.Currency = l.Currency.String
	}
	if price, err := db.Decimal(l.Price); err == nil {
		p := price.StringFixed(2)
		v.Price = &p
	}
	return v
}
