package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/shelfward/shelfward-server/principals"
	"github.com/shelfward/shelfward-server/sessioncookie"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyPrincipal stores the authenticated *principals.Principal
	ContextKeyPrincipal ContextKey = "principal"
)

// PrincipalFromContext returns the principal the session gate injected.
func PrincipalFromContext(ctx context.Context) (*principals.Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(*principals.Principal)
	return p, ok
}

// RequireSession is the first half of the session gate: the signed cookie must
// be present, verify, and carry a session ID that still matches the persisted
// one. The session-ID comparison is how revocation becomes effective even when
// the live-socket push was never delivered.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			p, errCode := s.gateSession(r)
			if errCode != "" {
				writeGateError(w, errCode)
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, p)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireLogin extends RequireSession: the bearer API key must also match the
// persisted one, proving the login fully completed. During the MFA window a
// valid cookie exists without a key; that case is reported as otp_pending so
// OTP endpoints can tell "not logged in" apart from "otp not finished".
func (s *Server) RequireLogin() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			p, errCode := s.gateSession(r)
			if errCode != "" {
				writeGateError(w, errCode)
				return
			}

			bearer := bearerToken(r)
			if p.APIKey == nil || bearer == "" || bearer != *p.APIKey {
				code := codeUnauthorized
				if p.MFAEnabled {
					code = codeOTPPending
				}
				writeError(w, http.StatusUnauthorized, code, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, p)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireAdmin rejects principals outside the administrative roles. Must be
// chained after RequireLogin.
func (s *Server) RequireAdmin() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || !p.IsAdmin() {
				writeError(w, http.StatusForbidden, "forbidden", "admin access required")
				return
			}
			next(w, r)
		}
	}
}

// gateSession validates the cookie half of the session record and loads the
// principal. Returns an error code string, or "" on success.
func (s *Server) gateSession(r *http.Request) (*principals.Principal, string) {
	cookie, err := r.Cookie(sessioncookie.CookieName)
	if err != nil {
		return nil, codeNotLoggedIn
	}

	claims, err := sessioncookie.Decode(s.config.GetCookieSecret(), cookie.Value)
	if err != nil {
		return nil, codeNotLoggedIn
	}

	p, err := s.repos.Principals.GetByID(r.Context(), claims.PrincipalID)
	if err != nil {
		// A deleted principal's cookie is indistinguishable from a stale
		// one; both read as an expired session.
		if errors.Is(err, principals.ErrNotFound) {
			return nil, codeSessionExpired
		}
		return nil, codeInternal
	}

	if p.SessionID == nil || *p.SessionID != claims.SessionID {
		return nil, codeSessionExpired
	}

	return p, ""
}

// writeGateError maps gate error codes onto status lines. Everything is a 401
// except a store failure behind the gate, which is a plain internal error.
func writeGateError(w http.ResponseWriter, code string) {
	if code == codeInternal {
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}
	writeError(w, http.StatusUnauthorized, code, "unauthorized")
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
