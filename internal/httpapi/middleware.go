package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/tenantgate/tenantgate/internal/store"
)

const apiKeyHeader = "X-API-Key"

type contextKey struct{ name string }

var apiKeyContextKey = contextKey{"api-key"}

// requireAPIKey authenticates the request's X-API-Key header and attaches
// the resolved key (and with it the tenant identity) to the context. The
// engine itself never sees transport-level request data.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(apiKeyHeader)
		if presented == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing api key"})
			return
		}

		key, err := s.store.AuthenticateKey(r.Context(), presented)
		if err != nil {
			s.respondAuthError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) respondAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isAuthRejection(err):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid or expired api key"})
	default:
		// Credential lookup failed for infrastructure reasons; don't
		// misreport that as a bad key.
		s.respondError(w, r, err)
	}
}

func isAuthRejection(err error) bool {
	return errorsIsAny(err, store.ErrNotFound, store.ErrKeyExpired)
}

// apiKeyFrom returns the authenticated key attached by requireAPIKey.
func apiKeyFrom(ctx context.Context) store.APIKey {
	key, _ := ctx.Value(apiKeyContextKey).(store.APIKey)
	return key
}

const adminTokenHeader = "X-Admin-Token"

// requireAdmin guards the tenant administration surface with the configured
// shared token. An unset token leaves the surface open for development.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken != "" {
			presented := r.Header.Get(adminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(s.cfg.AdminToken)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid admin token"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
