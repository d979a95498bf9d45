package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	apperrors "github.com/shelfward/shelfward-server/internal/errors"
	"github.com/shelfward/shelfward-server/auth"
	"github.com/shelfward/shelfward-server/cache"
	"github.com/shelfward/shelfward-server/principals"
)

// Error codes returned in response bodies. Clients branch on these, not on
// the human-readable message.
const (
	codeNotLoggedIn    = "not_logged_in"
	codeSessionExpired = "session_expired"
	codeAlreadyLogged  = "already_logged_in"
	codeBadCredentials = "credential_mismatch"
	codeMFADisabled    = "mfa_disabled"
	codeOTPPending     = "otp_pending"
	codeNotFound       = "not_found"
	codeDuplicate      = "duplicate"
	codeWeakPassword   = "weak_password"
	codeBadRequest     = "bad_request"
	codeRateLimited    = "rate_limited"
	codeUnauthorized   = "unauthorized"
	codeInternal       = "internal_error"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: code, Message: message})
}

// mapAuthError translates service errors on the login paths, where store
// not-found is deliberately shaped like a credential failure so the endpoint
// never confirms an account exists.
func mapAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, principals.ErrNotFound), errors.Is(err, auth.ErrCredentialMismatch):
		writeError(w, http.StatusUnauthorized, codeBadCredentials, "invalid credentials")
	case errors.Is(err, auth.ErrAlreadyLoggedIn):
		writeError(w, http.StatusConflict, codeAlreadyLogged, "a login is already active")
	case errors.Is(err, auth.ErrNotLoggedIn):
		writeError(w, http.StatusUnauthorized, codeNotLoggedIn, "not logged in")
	case errors.Is(err, auth.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, codeSessionExpired, "session expired")
	case errors.Is(err, auth.ErrMFADisabled):
		writeError(w, http.StatusBadRequest, codeMFADisabled, "multi-factor auth not enabled")
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, codeDuplicate, "email already registered")
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, codeWeakPassword, "password does not meet requirements")
	default:
		internalError(w, err)
	}
}

// mapAdminError translates store errors on admin-facing paths, where leaking
// existence is not sensitive and not-found really means 404.
func mapAdminError(w http.ResponseWriter, err error) {
	if errors.Is(err, principals.ErrNotFound) {
		writeError(w, http.StatusNotFound, codeNotFound, "principal not found")
		return
	}
	internalError(w, err)
}

// internalError is the catch-all: the failure is logged in full, the caller
// sees only a generic body.
func internalError(w http.ResponseWriter, err error) {
	if errors.Is(err, cache.ErrCorruptEntry) {
		// A corrupt cache document is a write-path defect; log it loudly
		// but the caller still gets the generic shape.
		log.Error().Err(err).Msg("corrupt cache entry")
	} else {
		log.Error().Err(err).Msg("request failed")
	}
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

// shapeValidator is implemented by every response payload; a failure on the
// way out signals a programming defect, distinct from runtime store errors.
type shapeValidator interface {
	ValidateShape() error
}

// respond validates and encodes a response payload.
func respond(w http.ResponseWriter, status int, payload shapeValidator) {
	if err := payload.ValidateShape(); err != nil {
		log.Error().Err(apperrors.Wrapf(apperrors.ErrOutputShape, "%T", payload)).
			Str("detail", err.Error()).
			Msg("response failed output validation")
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

const contentTypeJSON = "application/json; charset=utf-8"
