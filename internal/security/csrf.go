package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/noah-isme/farmbridge/internal/common"
)

const defaultCSRFName = "X-CSRF-Token"

// CSRF protects cookie-authenticated writes using the double-submit technique.
// Requests that carry no session cookie, or authenticate with a bearer token,
// pass through untouched.
type CSRF struct {
	Header        string
	SessionCookie string
}

// Middleware enforces that non-idempotent requests include a CSRF token header matching a cookie.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := c.name()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}

		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			next.ServeHTTP(w, r)
			return
		}
		if c.SessionCookie != "" {
			if _, err := r.Cookie(c.SessionCookie); err != nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			common.JSONError(w, http.StatusForbidden, common.CodeForbidden, "missing csrf token", nil)
			return
		}
		cookie, err := r.Cookie(headerName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, common.CodeForbidden, "missing csrf cookie", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, common.CodeForbidden, "invalid csrf token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Issue sets a fresh readable CSRF cookie and returns its value so clients can
// echo it in the header.
func (c CSRF) Issue(w http.ResponseWriter, secure bool) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func (c CSRF) name() string {
	if name := strings.TrimSpace(c.Header); name != "" {
		return name
	}
	return defaultCSRFName
}
