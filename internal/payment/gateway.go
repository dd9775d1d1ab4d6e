package payment

import (
	"context"
	"time"
)

// Metadata travels with a transaction for audit and debugging only. Nothing
// in it is trusted when deciding state.
type Metadata struct {
	ListingID  string `json:"listing_id"`
	BuyerID    string `json:"buyer_id"`
	SupplierID string `json:"supplier_id"`
	ItemName   string `json:"item_name"`
}

// InitializeRequest opens a checkout with the gateway.
type InitializeRequest struct {
	AmountMinor int64
	Currency    string
	Email       string
	Reference   string
	CallbackURL string
	Metadata    Metadata
}

// Authorization is the gateway's answer to a successful initialize call.
type Authorization struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Verification is the gateway's current view of a transaction.
type Verification struct {
	Reference       string
	Status          string
	AmountMinor     int64
	Currency        string
	GatewayResponse string
	PaidAt          *time.Time
}

// Gateway is the outbound payment provider. Implementations return
// *GatewayError for every failure.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req InitializeRequest) (Authorization, error)
	VerifyTransaction(ctx context.Context, reference string) (Verification, error)
}
