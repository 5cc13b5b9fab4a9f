package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tenantgate/tenantgate/internal/store"
	"github.com/tenantgate/tenantgate/pkg/limiter"
)

// checkRequest scopes an admission operation below the tenant. Both fields
// are optional; either may also be supplied as a query parameter, which is
// the natural form for GET /rate-limit/status.
type checkRequest struct {
	Resource string `json:"resource"`
	UserID   string `json:"userId"`
}

type rateLimitResponse struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
	Limit     int64 `json:"limit"`
	Reset     int64 `json:"reset"`
	ResetIn   int64 `json:"resetIn"`
}

func toRateLimitResponse(res limiter.Result) rateLimitResponse {
	out := rateLimitResponse{
		Allowed:   res.Allowed,
		Remaining: res.Remaining,
		Limit:     res.Limit,
		// Round up so a window with any life left never reports zero.
		ResetIn: int64(math.Ceil(res.ResetIn.Seconds())),
	}
	if !res.ResetAt.IsZero() {
		out.Reset = res.ResetAt.Unix()
	}
	return out
}

func decodeCheckRequest(r *http.Request) (checkRequest, error) {
	var req checkRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return checkRequest{}, err
		}
	}
	if v := r.URL.Query().Get("resource"); v != "" {
		req.Resource = v
	}
	if v := r.URL.Query().Get("userId"); v != "" {
		req.UserID = v
	}
	return req, nil
}

func (s *Server) subject(r *http.Request, req checkRequest) limiter.Subject {
	return limiter.Subject{
		TenantID:  apiKeyFrom(r.Context()).TenantID,
		Resource:  req.Resource,
		SubjectID: req.UserID,
	}
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCheckRequest(r)
	if err != nil {
		badRequest(w, "malformed request body")
		return
	}

	res, err := s.engine.Check(r.Context(), s.subject(r, req))
	if err != nil {
		s.respondDecisionError(w, r, err)
		return
	}
	observeDecision(res.Allowed)
	writeJSON(w, http.StatusOK, toRateLimitResponse(res))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCheckRequest(r)
	if err != nil {
		badRequest(w, "malformed request body")
		return
	}

	res, err := s.engine.Status(r.Context(), s.subject(r, req))
	if err != nil {
		s.respondDecisionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRateLimitResponse(res))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCheckRequest(r)
	if err != nil {
		badRequest(w, "malformed request body")
		return
	}

	if err := s.engine.Reset(r.Context(), s.subject(r, req)); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondDecisionError applies the deployment's outage policy. Fail-closed
// (the default) reports 503 with no decision; fail-open admits the request
// without consuming quota, trading protection for availability.
func (s *Server) respondDecisionError(w http.ResponseWriter, r *http.Request, err error) {
	observeDecisionError()
	if s.cfg.FailOpen {
		s.logger.Error("admission check degraded, failing open", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusOK, rateLimitResponse{Allowed: true})
		return
	}
	s.respondError(w, r, err)
}

// Quota config CRUD, scoped to the authenticated tenant.

type createConfigRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	MaxRequests   int64  `json:"maxRequests"`
	WindowSeconds int64  `json:"windowSeconds"`
}

type updateConfigRequest struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	MaxRequests   *int64  `json:"maxRequests"`
	WindowSeconds *int64  `json:"windowSeconds"`
	Active        *bool   `json:"active"`
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req createConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed request body")
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}

	cfg, err := s.store.CreateConfig(r.Context(), apiKeyFrom(r.Context()).TenantID, store.ConfigParams{
		Name:          req.Name,
		Description:   req.Description,
		MaxRequests:   req.MaxRequests,
		WindowSeconds: req.WindowSeconds,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.store.ListConfigs(r.Context(), apiKeyFrom(r.Context()).TenantID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if configs == nil {
		configs = []store.QuotaConfig{}
	}
	writeJSON(w, http.StatusOK, configs)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.ownedConfig(w, r)
	if !ok {
		return
	}

	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed request body")
		return
	}

	updated, err := s.store.UpdateConfig(r.Context(), cfg.ID, store.ConfigUpdate{
		Name:          req.Name,
		Description:   req.Description,
		MaxRequests:   req.MaxRequests,
		WindowSeconds: req.WindowSeconds,
		Active:        req.Active,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.ownedConfig(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteConfig(r.Context(), cfg.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedConfig loads the addressed config and hides other tenants' configs
// behind 404.
func (s *Server) ownedConfig(w http.ResponseWriter, r *http.Request) (store.QuotaConfig, bool) {
	cfg, err := s.store.GetConfig(r.Context(), chi.URLParam(r, "configID"))
	if err != nil {
		s.respondError(w, r, err)
		return store.QuotaConfig{}, false
	}
	if cfg.TenantID != apiKeyFrom(r.Context()).TenantID {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return store.QuotaConfig{}, false
	}
	return cfg, true
}
