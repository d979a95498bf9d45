package server

import (
	"net/http"

	"github.com/shelfward/shelfward-server/cache"
	"github.com/shelfward/shelfward-server/revocation"
)

// BlockPrincipalHandler blocks an account and revokes any active session.
// Order matters: the blocked flag and session clear are persisted before the
// registry push is attempted, so the next request from that principal is
// rejected by the gate even if the push is lost.
func (s *Server) BlockPrincipalHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		target, err := s.repos.Principals.GetByID(r.Context(), id)
		if err != nil {
			mapAdminError(w, err)
			return
		}

		if err := s.repos.Principals.SetBlocked(r.Context(), id, true); err != nil {
			mapAdminError(w, err)
			return
		}
		if err := s.revoker.Revoke(r.Context(), revocation.KindFor(target.Role), id, "blocked"); err != nil {
			mapAdminError(w, err)
			return
		}
		if err := s.details.Invalidate(r.Context(), cache.Key("client", id)); err != nil {
			internalError(w, err)
			return
		}

		respond(w, http.StatusOK, revokeResponse{PrincipalID: id, Revoked: true})
	}
}

// UnblockPrincipalHandler lifts a block. The account stays logged out; the
// principal goes through the normal login flow again.
func (s *Server) UnblockPrincipalHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		if err := s.repos.Principals.SetBlocked(r.Context(), id, false); err != nil {
			mapAdminError(w, err)
			return
		}
		if err := s.details.Invalidate(r.Context(), cache.Key("client", id)); err != nil {
			internalError(w, err)
			return
		}

		respond(w, http.StatusOK, revokeResponse{PrincipalID: id, Revoked: false})
	}
}

// DeletePrincipalHandler revokes any active session, then destroys the
// record. Revocation first: once the record is gone ClearSession would fail,
// and the live device would never hear about it.
func (s *Server) DeletePrincipalHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		target, err := s.repos.Principals.GetByID(r.Context(), id)
		if err != nil {
			mapAdminError(w, err)
			return
		}

		if err := s.revoker.Revoke(r.Context(), revocation.KindFor(target.Role), id, "deleted"); err != nil {
			mapAdminError(w, err)
			return
		}
		if err := s.repos.Principals.Delete(r.Context(), id); err != nil {
			mapAdminError(w, err)
			return
		}
		if err := s.details.Invalidate(r.Context(), cache.Key("client", id)); err != nil {
			internalError(w, err)
			return
		}

		respond(w, http.StatusOK, revokeResponse{PrincipalID: id, Revoked: true})
	}
}
