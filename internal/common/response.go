package common

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// ErrorBody is the error payload returned by the API.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorBody{Error: message, Code: code, Details: details})
}

// WriteError renders err. AppErrors keep their status and message; anything
// else is logged and hidden behind a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.HTTPStatus >= http.StatusInternalServerError && appErr.Err != nil {
			zerolog.Ctx(r.Context()).Error().Err(appErr.Err).Str("code", appErr.Code).Msg("request failed")
		}
		JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Msg("unhandled error")
	JSONError(w, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
}
