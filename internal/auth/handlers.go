package auth

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/farmbridge/internal/common"
	"github.com/noah-isme/farmbridge/internal/security"
)

// Handler exposes HTTP handlers for authentication and account endpoints.
type Handler struct {
	Service          *Service
	Validate         *validator.Validate
	CSRF             security.CSRF
	AccessCookieName string
	CookieDomain     string
	CookieSecure     bool
	CookieSameSite   http.SameSite
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUTH_NOT_CONFIGURED", "auth service not configured", nil)
		return
	}
	var req RegisterInput
	if err := h.decode(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	user, err := h.Service.Register(r.Context(), req)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": user})
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUTH_NOT_CONFIGURED", "auth service not configured", nil)
		return
	}
	var req loginRequest
	if err := h.decode(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	result, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	h.setAccessCookie(w, result)
	csrfToken, err := h.CSRF.Issue(w, h.CookieSecure)
	if err != nil {
		common.WriteError(w, r, common.Internal(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"user":                    result.User,
			"access_token":            result.AccessToken,
			"access_token_expires_at": result.AccessExpiry,
			"csrf_token":              csrfToken,
		},
	})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.clearAccessCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUTH_NOT_CONFIGURED", "auth service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "Unauthorized", nil)
		return
	}
	user, err := h.Service.Me(r.Context(), userID)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": user})
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := common.DecodeJSON(r, dst); err != nil {
		return err
	}
	if h.Validate == nil {
		return nil
	}
	return common.ValidateStruct(h.Validate, dst)
}

func (h *Handler) setAccessCookie(w http.ResponseWriter, result LoginResult) {
	if h.AccessCookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.AccessCookieName,
		Value:    result.AccessToken,
		Domain:   h.CookieDomain,
		Path:     "/",
		Expires:  result.AccessExpiry,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: h.CookieSameSite,
	})
}

func (h *Handler) clearAccessCookie(w http.ResponseWriter) {
	if h.AccessCookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.AccessCookieName,
		Value:    "",
		Domain:   h.CookieDomain,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: h.CookieSameSite,
	})
}
