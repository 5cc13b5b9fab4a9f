package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tenantgate/tenantgate/internal/store"
)

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	q := store.MetricsQuery{
		Range:    r.URL.Query().Get("timeRange"),
		Resource: r.URL.Query().Get("resource"),
	}
	switch q.Range {
	case "", "hour", "day", "week", "month":
	default:
		badRequest(w, "timeRange must be one of hour, day, week, month")
		return
	}
	if v := r.URL.Query().Get("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(w, "startDate must be RFC 3339")
			return
		}
		q.Start = t
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(w, "endDate must be RFC 3339")
			return
		}
		q.End = t
	}

	summary, err := s.store.Summary(r.Context(), apiKeyFrom(r.Context()).TenantID, q)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if summary.Metrics == nil {
		summary.Metrics = []store.CheckMetric{}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTopResources(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	top, err := s.store.TopResources(r.Context(), apiKeyFrom(r.Context()).TenantID, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if top == nil {
		top = []store.ResourceCount{}
	}
	writeJSON(w, http.StatusOK, top)
}
