package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/shelfward/shelfward-server/cache"
	"github.com/shelfward/shelfward-server/principals"
)

const clientNamespace = "client"

// ClientDetailHandler serves the reader detail projection through the
// cache-aside path: a hit skips the store entirely, a miss loads and
// repopulates, and "no such client" is returned without caching the negative.
func (s *Server) ClientDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		key := cache.Key(clientNamespace, id)

		doc, err := s.details.Detail(r.Context(), key, s.clientLoader(id))
		if err != nil {
			internalError(w, err)
			return
		}
		if doc == nil {
			writeError(w, http.StatusNotFound, codeNotFound, "client not found")
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_, _ = w.Write(doc)
	}
}

// clientLoader builds the detail document from the principal store.
func (s *Server) clientLoader(id string) cache.Loader {
	return func(ctx context.Context) (json.RawMessage, error) {
		p, err := s.repos.Principals.GetByID(ctx, id)
		if errors.Is(err, principals.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "[clientLoader] GetByID")
		}
		if p.Role != principals.RoleClient {
			return nil, nil
		}
		doc, err := json.Marshal(clientDetailDocument{
			ID:         p.ID,
			Email:      p.Email,
			Blocked:    p.Blocked,
			MFAEnabled: p.MFAEnabled,
			DateJoined: p.DateJoined,
		})
		return doc, errors.Wrap(err, "[clientLoader] marshal")
	}
}

// ClientUpdateHandler applies a partial update. The cache key is invalidated
// before the store write, then the accepted fields are merged back so a warm
// cache does not need a full reload. A cache failure after the store write
// still fails the request; the record changed but the caller is told the
// operation did not cleanly succeed.
func (s *Server) ClientUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		key := cache.Key(clientNamespace, id)

		var req clientUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "malformed body")
			return
		}
		if req.Email == nil && req.MFAEnabled == nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "no fields to update")
			return
		}

		p, err := s.repos.Principals.GetByID(r.Context(), id)
		if err != nil {
			mapAdminError(w, err)
			return
		}
		if p.Role != principals.RoleClient {
			writeError(w, http.StatusNotFound, codeNotFound, "client not found")
			return
		}

		if err := s.details.Invalidate(r.Context(), key); err != nil {
			internalError(w, err)
			return
		}

		partial := map[string]any{}
		if req.Email != nil {
			p.Email = *req.Email
			partial["email"] = *req.Email
		}
		if req.MFAEnabled != nil {
			p.MFAEnabled = *req.MFAEnabled
			partial["mfa_enabled"] = *req.MFAEnabled
		}

		if err := s.repos.Principals.Upsert(r.Context(), p); err != nil {
			mapAdminError(w, err)
			return
		}

		partialDoc, err := json.Marshal(partial)
		if err != nil {
			internalError(w, err)
			return
		}
		if err := s.details.Merge(r.Context(), key, partialDoc); err != nil {
			internalError(w, err)
			return
		}

		respond(w, http.StatusOK, toPrincipalResponse(p))
	}
}
