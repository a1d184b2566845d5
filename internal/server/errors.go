package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/teemow/memorylane/internal/access"
	"github.com/teemow/memorylane/internal/auth"
	"github.com/teemow/memorylane/internal/google"
	"github.com/teemow/memorylane/internal/journal"
)

// Error codes returned in API error bodies. The UI switches on these, not
// on messages.
const (
	CodeNotConfigured           = "not_configured"
	CodeNotLoaded               = "not_loaded"
	CodeAuthorization           = "authorization_failed"
	CodeSuperseded              = "login_superseded"
	CodeNotSignedIn             = "not_signed_in"
	CodeVerificationUnavailable = "verification_unavailable"
	CodeAccessDenied            = "access_denied"
	CodeInvalidRequest          = "invalid_request"
	CodeUploadFailed            = "upload_failed"
	CodeAppendFailed            = "append_failed"
	CodeCancelled               = "cancelled"
	CodeInternal                = "internal"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify maps a component error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		return http.StatusPreconditionFailed, CodeNotConfigured
	case errors.Is(err, auth.ErrNotLoaded):
		return http.StatusServiceUnavailable, CodeNotLoaded
	case errors.Is(err, auth.ErrLoginSuperseded):
		return http.StatusConflict, CodeSuperseded
	case errors.Is(err, auth.ErrAuthorization):
		return http.StatusUnauthorized, CodeAuthorization
	case errors.Is(err, access.ErrVerificationUnavailable):
		return http.StatusBadGateway, CodeVerificationUnavailable
	case errors.Is(err, access.ErrAccessDenied), errors.Is(err, access.ErrNoEmail):
		return http.StatusForbidden, CodeAccessDenied
	case errors.Is(err, journal.ErrNoToken), errors.Is(err, google.ErrNoToken), google.IsUnauthorized(err), isRefreshFailure(err):
		return http.StatusUnauthorized, CodeNotSignedIn
	case errors.Is(err, journal.ErrInvalidImage):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, journal.ErrAppendFailed):
		return http.StatusBadGateway, CodeAppendFailed
	case errors.Is(err, journal.ErrUploadFailed), errors.Is(err, journal.ErrMissingLink):
		return http.StatusBadGateway, CodeUploadFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeCancelled
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// isRefreshFailure reports whether the token endpoint rejected a refresh,
// which leaves the user signed out.
func isRefreshFailure(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: CodeInvalidRequest})
}
