package server

import (
	"encoding/json"
	"net/http"

	"github.com/shelfward/shelfward-server/principals"
	"github.com/shelfward/shelfward-server/sessioncookie"
)

// LoginHandler runs the credential step of the login state machine. On
// success the signed session cookie is set; the API key is returned inline
// unless the account has MFA enabled, in which case the client must complete
// the OTP step first.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, codeBadRequest, "email and password are required")
			return
		}

		if !s.limiter.Allow(req.Email) {
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many login attempts")
			return
		}

		result, err := s.auth.VerifyCredentials(r.Context(), req.Email, req.Password)
		if err != nil {
			mapAuthError(w, err)
			return
		}

		cookieValue, err := sessioncookie.Encode(s.config.GetCookieSecret(), sessioncookie.Claims{
			SessionID:   result.SessionID,
			PrincipalID: result.Principal.ID,
			Role:        result.Principal.Role,
		})
		if err != nil {
			internalError(w, err)
			return
		}
		s.setSessionCookie(w, cookieValue)

		respond(w, http.StatusOK, loginResponse{
			PrincipalID: result.Principal.ID,
			Role:        result.Principal.Role,
			OTPPending:  result.OTPPending,
			APIKey:      result.APIKey,
		})
	}
}

// OTPRequestHandler generates and mails a fresh code. Gated by
// RequireSession only: the caller is mid-login and has no bearer key yet.
func (s *Server) OTPRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())

		if err := s.auth.RequestOTP(r.Context(), p.ID); err != nil {
			mapAuthError(w, err)
			return
		}
		respond(w, http.StatusOK, otpRequestResponse{Sent: true})
	}
}

// OTPVerifyHandler completes the MFA step and returns the bearer key.
func (s *Server) OTPVerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())

		var req otpVerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			writeError(w, http.StatusBadRequest, codeBadRequest, "code is required")
			return
		}

		result, err := s.auth.VerifyOTP(r.Context(), p.ID, req.Code)
		if err != nil {
			mapAuthError(w, err)
			return
		}
		respond(w, http.StatusOK, otpVerifyResponse{APIKey: result.APIKey})
	}
}

// LogoutHandler clears the session record and the cookie. Valid from a
// completed login or a half-finished OTP window alike.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())

		if err := s.auth.Logout(r.Context(), p.ID); err != nil {
			mapAuthError(w, err)
			return
		}
		s.clearSessionCookie(w)
		respond(w, http.StatusOK, logoutResponse{LoggedOut: true})
	}
}

// MeHandler returns the authenticated principal's projection.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		respond(w, http.StatusOK, toPrincipalResponse(p))
	}
}

// SignupHandler registers a new principal. Role defaults to client; admin
// roles cannot be self-assigned through the public endpoint.
func (s *Server) SignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, codeBadRequest, "email and password are required")
			return
		}

		role := req.Role
		if role != principals.RoleClient && role != principals.RoleUser {
			role = principals.RoleClient
		}

		p, err := s.auth.Register(r.Context(), req.Email, req.Password, role, req.MFAEnabled)
		if err != nil {
			mapAuthError(w, err)
			return
		}
		respond(w, http.StatusCreated, toPrincipalResponse(p))
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessioncookie.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.config.GetCookieMaxAge().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessioncookie.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
