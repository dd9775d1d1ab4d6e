package gen

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

type UserRole string

const (
	UserRoleFarmer UserRole = "farmer"
	UserRoleBuyer  UserRole = "buyer"
)

type User struct {
	ID           pgtype.UUID        `json:"id"`
	Email        string             `json:"email"`
	Name         string             `json:"name"`
	Role         UserRole           `json:"role"`
	PasswordHash string             `json:"password_hash"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
}

type Listing struct {
	ID          pgtype.UUID        `json:"id"`
	SupplierID  pgtype.UUID        `json:"supplier_id"`
	ItemName    string             `json:"item_name"`
	Quantity    string             `json:"quantity"`
	Price       pgtype.Numeric     `json:"price"`
	Currency    pgtype.Text        `json:"currency"`
	Contact     string             `json:"contact"`
	IsAvailable bool               `json:"is_available"`
	CreatedAt   pgtype.Timestamptz `json:"created_at"`
}

type Payment struct {
	ID                   pgtype.UUID        `json:"id"`
	TransactionReference string             `json:"transaction_reference"`
	Amount               pgtype.Numeric     `json:"amount"`
	Currency             string             `json:"currency"`
	Status               PaymentStatus      `json:"status"`
	SupplierID           pgtype.UUID        `json:"supplier_id"`
	BuyerID              pgtype.UUID        `json:"buyer_id"`
	ListingID            pgtype.UUID        `json:"listing_id"`
	CreatedAt            pgtype.Timestamptz `json:"created_at"`
	UpdatedAt            pgtype.Timestamptz `json:"updated_at"`
}

type PaymentWebhookEvent struct {
	ID         pgtype.UUID        `json:"id"`
	Event      string             `json:"event"`
	Reference  pgtype.Text        `json:"reference"`
	Payload    []byte             `json:"payload"`
	Outcome    string             `json:"outcome"`
	ReceivedAt pgtype.Timestamptz `json:"received_at"`
}
