package listing

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/farmbridge/internal/common"
)

// Handler exposes listing endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "LISTING_NOT_CONFIGURED", "listing handler unavailable", nil)
		return false
	}
	return true
}

// Create implements POST /listings.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Please login to create a listing."))
		return
	}
	var in CreateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if err := common.ValidateStruct(h.Validate, in); err != nil {
		common.WriteError(w, r, err)
		return
	}
	view, err := h.Svc.Create(r.Context(), userID, in)
	if err != nil {
		common.WriteError(w, r, toAppError(err))
		return
	}
	common.JSON(w, http.StatusCreated, view)
}

// Mine implements GET /listings/mine.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Please login to access the dashboard."))
		return
	}
	items, err := h.Svc.Mine(r.Context(), userID)
	if err != nil {
		common.WriteError(w, r, toAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": items})
}

// Search implements GET /listings.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	req := common.ParsePage(r, 20)
	items, total, err := h.Svc.Search(r.Context(), r.URL.Query().Get("search"), req.PerPage, req.Offset())
	if err != nil {
		common.WriteError(w, r, toAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": req.Counted(int64(total))})
}

// Update implements PATCH /listings/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Please login to update listings."))
		return
	}
	var in UpdateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, r, err)
		return
	}
	view, err := h.Svc.Update(r.Context(), userID, strings.TrimSpace(chi.URLParam(r, "id")), in)
	if err != nil {
		common.WriteError(w, r, toAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, view)
}

// Delete implements DELETE /listings/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Please login to delete listings."))
		return
	}
	if err := h.Svc.Delete(r.Context(), userID, strings.TrimSpace(chi.URLParam(r, "id"))); err != nil {
		common.WriteError(w, r, toAppError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toAppError(err error) error {
	switch {
	case common.IsAppError(err):
		return err
	case errors.Is(err, ErrNotFound):
		return common.NotFound("Listing not found or you do not have permission to change it.", err)
	case errors.Is(err, ErrSold):
		return common.Conflict("Listing has a completed payment; availability cannot change.", err)
	case errors.Is(err, ErrReferenced):
		return common.Conflict("Listing has payments and cannot be deleted.", err)
	default:
		return common.Internal(err)
	}
}
