package payment

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/farmbridge/internal/common"
)

// Handler exposes checkout, status polling and transaction views.
type Handler struct {
	Svc           *Service
	Validate      *validator.Validate
	PublicBaseURL string
}

type initiateReq struct {
	ListingID *string          `json:"listing_id" validate:"required"`
	Amount    *decimal.Decimal `json:"amount" validate:"required"`
	Currency  *string          `json:"currency" validate:"required"`
}

type initiateResp struct {
	Status           string `json:"status"`
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

// Initiate implements POST /paystack/initiate.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Authentication required"))
		return
	}
	var req initiateReq
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, common.Validation("Invalid request data", err))
		return
	}
	if err := common.ValidateStruct(h.Validate, req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	res, err := h.Svc.Initiate(r.Context(), InitiateRequest{
		BuyerID:   userID,
		ListingID: strings.TrimSpace(*req.ListingID),
		Amount:    *req.Amount,
		Currency:  *req.Currency,
	})
	if err != nil {
		common.WriteError(w, r, toAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, initiateResp{
		Status:           "success",
		AuthorizationURL: res.AuthorizationURL,
		Reference:        res.Reference,
	})
}

// Success implements GET /payment/success, where the gateway returns the
// buyer. It only navigates; completion is decided by the webhook.
func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		h.redirectDashboard(w, r, "Invalid payment reference.")
		return
	}
	exists, err := h.Svc.Exists(r.Context(), reference)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("reference", reference).Msg("payment callback lookup")
		h.redirectDashboard(w, r, "Error processing payment callback.")
		return
	}
	if !exists {
		h.redirectDashboard(w, r, "Transaction not found.")
		return
	}
	http.Redirect(w, r, h.PublicBaseURL+"/transactions/"+url.PathEscape(reference), http.StatusFound)
}

// Status implements GET /api/transaction-status/{reference}.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Unauthorized"))
		return
	}
	view, err := h.Svc.Status(r.Context(), chi.URLParam(r, "reference"), userID)
	if err != nil {
		common.WriteError(w, r, toAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, view)
}

// Detail implements GET /transactions/{reference}.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Please log in to view transactions."))
		return
	}
	view, err := h.Svc.Detail(r.Context(), chi.URLParam(r, "reference"), userID)
	if err != nil {
		common.WriteError(w, r, toAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, view)
}

// History implements GET /payments.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Authentication required"))
		return
	}
	req := common.ParsePage(r, 20)
	rows, err := h.Svc.History(r.Context(), userID, req.PerPage+1, req.Offset())
	if err != nil {
		common.WriteError(w, r, toAppError(err))
		return
	}
	items, page := common.TrimPage(req, rows)
	common.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": page})
}

func (h *Handler) redirectDashboard(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, h.PublicBaseURL+"/dashboard?error="+url.QueryEscape(msg), http.StatusFound)
}

func toAppError(err error) error {
	var input *InputError
	var gwErr *GatewayError
	switch {
	case errors.As(err, &input):
		return common.Validation(input.Message, err)
	case errors.Is(err, ErrListingUnavailable):
		return common.NotFound("Listing not found or no longer available", err)
	case errors.Is(err, ErrBuyerNotFound):
		return common.NotFound("User not found", err)
	case errors.Is(err, ErrSelfPurchase):
		return common.Validation("Cannot purchase your own listing", err)
	case errors.Is(err, ErrPaymentNotFound):
		return common.NotFound("Transaction not found", err)
	case errors.Is(err, ErrForbidden):
		return common.Forbidden("Access denied", err)
	case errors.As(err, &gwErr):
		if gwErr.Kind == GatewayRejected {
			msg := gwErr.Message
			if msg == "" {
				msg = "Payment initialization failed"
			}
			return common.Upstream(msg, http.StatusBadRequest, err)
		}
		return common.Upstream("Payment service unavailable", http.StatusServiceUnavailable, err)
	case errors.Is(err, ErrInvalidInput):
		return common.Validation("Invalid request data", err)
	default:
		return common.Internal(err)
	}
}
