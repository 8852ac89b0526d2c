package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the API has one
// success shape per endpoint and exactly one error shape:
//
//	{"error": "validation_error", "message": "...", "errors": {"email": ["..."]}}
//
// "error" is a stable machine-readable code, "message" is for humans and
// "errors" is only present for field-scoped failures.
//
// WHY IS AN UNKNOWN ACTIVATION TOKEN 400 AND NOT 404?
// A 404 would tell a caller that guessed tokens are being looked up by
// existence. Bad and unknown tokens therefore share one answer,
// 400 invalid_token, and only an expired token is told apart.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/sakif/accounts/internal/apperror"
)

// maxBodyBytes caps request bodies; the largest payload is a profile bio.
const maxBodyBytes = 64 << 10

// ErrorResponse is the error body returned by all API endpoints.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a service error to a status code and an error code.
//
//	ErrValidation     → 400 validation_error
//	ErrConflict       → 400 duplicate_email
//	ErrInvalidToken   → 400 invalid_token
//	ErrExpired        → 400 token_expired
//	ErrAuthentication → 401 AppError.Code
//	ErrForbidden      → 403 forbidden
//	ErrNotFound       → 404 not_found
//	ErrThrottled      → 429 throttled, with Retry-After
//	anything else     → 500 internal_error, logged, details withheld
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrConflict):
		status, code = http.StatusBadRequest, "duplicate_email"
	case errors.Is(err, apperror.ErrInvalidToken):
		status, code = http.StatusBadRequest, "invalid_token"
	case errors.Is(err, apperror.ErrExpired):
		status, code = http.StatusBadRequest, "token_expired"
	case errors.Is(err, apperror.ErrAuthentication):
		status, code = http.StatusUnauthorized, appErr.Code
		if code == "" {
			code = apperror.CodeUnauthorized
		}
	case errors.Is(err, apperror.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrThrottled):
		status, code = http.StatusTooManyRequests, "throttled"
		secs := int(math.Ceil(appErr.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: appErr.Message,
		Errors:  appErr.FieldErrors(),
	})
}

// decodeJSON reads a size-limited JSON body into dst. An empty body leaves
// dst untouched so that validation reports the missing fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperror.ValidationFailed("", "Invalid JSON body")
	}
	return nil
}

// clientKey identifies the caller for rate limiting. chi's RealIP has
// already replaced RemoteAddr with the forwarded address when present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
