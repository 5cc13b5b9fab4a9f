package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tenantgate/tenantgate/pkg/limiter"
)

// CheckMetric is one persisted admission check outcome.
type CheckMetric struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	Resource     string    `json:"resource,omitempty"`
	SubjectID    string    `json:"userId,omitempty"`
	RequestCount int64     `json:"requestCount"`
	Limit        int64     `json:"limit"`
	WasLimited   bool      `json:"wasLimited"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MetricsQuery selects a time range of metrics. Range (hour, day, week,
// month) takes precedence over Start/End; with neither set the last 24 hours
// are used.
type MetricsQuery struct {
	Start    time.Time
	End      time.Time
	Range    string
	Resource string
}

// MetricsSummary aggregates a tenant's checks over a query window.
// Aggregates are computed over at most 1000 most recent rows; Metrics holds
// the most recent 100 for detail.
type MetricsSummary struct {
	TotalRequests   int64         `json:"totalRequests"`
	LimitedRequests int64         `json:"limitedRequests"`
	AverageRequests float64       `json:"averageRequests"`
	PeakRequests    int64         `json:"peakRequests"`
	Metrics         []CheckMetric `json:"metrics"`
}

// ResourceCount is one row of a top-resources ranking.
type ResourceCount struct {
	Resource string `json:"resource"`
	Count    int64  `json:"count"`
}

const (
	summaryScanLimit   = 1000
	summaryDetailLimit = 100
)

// InsertCheckEvent persists one engine check event.
func (s *Store) InsertCheckEvent(ctx context.Context, ev limiter.CheckEvent) error {
	at := ev.At.UTC()
	if ev.At.IsZero() {
		at = now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO rate_limit_metrics
		 (id, tenant_id, resource, subject_id, request_count, limit_value, was_limited, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), ev.TenantID, nullable(ev.Resource), nullable(ev.SubjectID),
		ev.Count, ev.Limit, ev.Limited, at)
	if err != nil {
		return fmt.Errorf("insert check metric: %w", err)
	}
	return nil
}

// Summary aggregates the tenant's recorded checks over the query window.
func (s *Store) Summary(ctx context.Context, tenantID string, q MetricsQuery) (MetricsSummary, error) {
	start, end := q.window()

	query := `SELECT id, tenant_id, resource, subject_id, request_count, limit_value, was_limited, created_at
		 FROM rate_limit_metrics
		 WHERE tenant_id = ? AND created_at >= ? AND created_at <= ?`
	args := []any{tenantID, start, end}
	if q.Resource != "" {
		query += ` AND resource = ?`
		args = append(args, q.Resource)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, summaryScanLimit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return MetricsSummary{}, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var (
		summary MetricsSummary
		scanned []CheckMetric
	)
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return MetricsSummary{}, err
		}
		scanned = append(scanned, m)
	}
	if err := rows.Err(); err != nil {
		return MetricsSummary{}, err
	}

	for _, m := range scanned {
		summary.TotalRequests += m.RequestCount
		if m.WasLimited {
			summary.LimitedRequests++
		}
		if m.RequestCount > summary.PeakRequests {
			summary.PeakRequests = m.RequestCount
		}
	}
	if len(scanned) > 0 {
		avg := float64(summary.TotalRequests) / float64(len(scanned))
		summary.AverageRequests = math.Round(avg*100) / 100
	}
	if len(scanned) > summaryDetailLimit {
		scanned = scanned[:summaryDetailLimit]
	}
	summary.Metrics = scanned
	return summary, nil
}

// TopResources ranks the tenant's resources by recorded check count.
func (s *Store) TopResources(ctx context.Context, tenantID string, limit int) ([]ResourceCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.query(ctx,
		`SELECT resource, COUNT(*) AS n FROM rate_limit_metrics
		 WHERE tenant_id = ? AND resource IS NOT NULL
		 GROUP BY resource ORDER BY n DESC LIMIT `+fmt.Sprint(limit),
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("query top resources: %w", err)
	}
	defer rows.Close()

	var top []ResourceCount
	for rows.Next() {
		var rc ResourceCount
		if err := rows.Scan(&rc.Resource, &rc.Count); err != nil {
			return nil, err
		}
		top = append(top, rc)
	}
	return top, rows.Err()
}

// PruneMetrics deletes metrics older than the retention period and reports
// how many rows went.
func (s *Store) PruneMetrics(ctx context.Context, retainDays int) (int64, error) {
	if retainDays <= 0 {
		retainDays = 30
	}
	cutoff := now().AddDate(0, 0, -retainDays)
	res, err := s.exec(ctx,
		`DELETE FROM rate_limit_metrics WHERE created_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune metrics: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (q MetricsQuery) window() (time.Time, time.Time) {
	end := now()
	switch q.Range {
	case "hour":
		return end.Add(-time.Hour), end
	case "day":
		return end.Add(-24 * time.Hour), end
	case "week":
		return end.AddDate(0, 0, -7), end
	case "month":
		return end.AddDate(0, -1, 0), end
	}
	if !q.Start.IsZero() {
		if !q.End.IsZero() {
			end = q.End.UTC()
		}
		return q.Start.UTC(), end
	}
	return end.Add(-24 * time.Hour), end
}

func scanMetric(row rowScanner) (CheckMetric, error) {
	var (
		m        CheckMetric
		resource sql.NullString
		subject  sql.NullString
	)
	err := row.Scan(&m.ID, &m.TenantID, &resource, &subject, &m.RequestCount, &m.Limit, &m.WasLimited, &m.CreatedAt)
	if err != nil {
		return CheckMetric{}, err
	}
	m.Resource = resource.String
	m.SubjectID = subject.String
	return m, nil
}
