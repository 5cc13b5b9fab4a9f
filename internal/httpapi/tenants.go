package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tenantgate/tenantgate/internal/store"
)

type createTenantRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ContactEmail string `json:"contactEmail"`
}

type updateTenantRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	ContactEmail *string `json:"contactEmail"`
	Active       *bool   `json:"active"`
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed request body")
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}

	tenant, err := s.store.CreateTenant(r.Context(), store.TenantParams{
		Name:         req.Name,
		Description:  req.Description,
		ContactEmail: req.ContactEmail,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.store.ListTenants(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if tenants == nil {
		tenants = []store.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := s.store.GetTenant(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	var req updateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed request body")
		return
	}

	tenant, err := s.store.UpdateTenant(r.Context(), chi.URLParam(r, "tenantID"), store.TenantUpdate{
		Name:         req.Name,
		Description:  req.Description,
		ContactEmail: req.ContactEmail,
		Active:       req.Active,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTenant(r.Context(), chi.URLParam(r, "tenantID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createAPIKeyRequest struct {
	Name      string `json:"name"`
	ExpiresAt string `json:"expiresAt"`
}

// createAPIKeyResponse carries the plaintext key exactly once; it is not
// recoverable afterwards.
type createAPIKeyResponse struct {
	APIKey store.APIKey `json:"apiKey"`
	Key    string       `json:"key"`
}

func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed request body")
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			badRequest(w, "expiresAt must be RFC 3339")
			return
		}
		expiresAt = &t
	}

	key, plaintext, err := s.store.CreateAPIKey(r.Context(), chi.URLParam(r, "tenantID"), req.Name, expiresAt)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createAPIKeyResponse{APIKey: key, Key: plaintext})
}

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListAPIKeys(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if keys == nil {
		keys = []store.APIKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RevokeAPIKey(r.Context(), chi.URLParam(r, "keyID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ActivateAPIKey(r.Context(), chi.URLParam(r, "keyID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
