package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tenantgate/tenantgate/pkg/limiter"
)

// Window bounds enforced at write time, so the engine only ever sees sane
// quotas.
const (
	minWindowSeconds = 1
	maxWindowSeconds = 86400
)

// QuotaConfig is a persisted rate-limit policy owned by one tenant.
type QuotaConfig struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	MaxRequests   int64     `json:"maxRequests"`
	WindowSeconds int64     `json:"windowSeconds"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ConfigParams carries the writable fields for config creation.
type ConfigParams struct {
	Name          string
	Description   string
	MaxRequests   int64
	WindowSeconds int64
}

// ConfigUpdate carries optional field updates; nil fields are left untouched.
type ConfigUpdate struct {
	Name          *string
	Description   *string
	MaxRequests   *int64
	WindowSeconds *int64
	Active        *bool
}

const configColumns = "id, tenant_id, name, description, max_requests, window_seconds, active, created_at, updated_at"

// CreateConfig validates and inserts a quota config for the tenant.
func (s *Store) CreateConfig(ctx context.Context, tenantID string, params ConfigParams) (QuotaConfig, error) {
	if err := validateQuota(params.MaxRequests, params.WindowSeconds); err != nil {
		return QuotaConfig{}, err
	}
	if _, err := s.GetTenant(ctx, tenantID); err != nil {
		return QuotaConfig{}, err
	}

	c := QuotaConfig{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Name:          params.Name,
		Description:   params.Description,
		MaxRequests:   params.MaxRequests,
		WindowSeconds: params.WindowSeconds,
		Active:        true,
		CreatedAt:     now(),
	}
	c.UpdatedAt = c.CreatedAt

	_, err := s.exec(ctx,
		`INSERT INTO rate_limit_configs (`+configColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.Name, c.Description, c.MaxRequests, c.WindowSeconds, c.Active, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return QuotaConfig{}, fmt.Errorf("insert config: %w", err)
	}
	return c, nil
}

// ListConfigs returns the tenant's active configs, newest first.
func (s *Store) ListConfigs(ctx context.Context, tenantID string) ([]QuotaConfig, error) {
	rows, err := s.query(ctx,
		`SELECT `+configColumns+` FROM rate_limit_configs
		 WHERE tenant_id = ? AND active ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	defer rows.Close()

	var configs []QuotaConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// GetConfig returns one config by id, or ErrNotFound.
func (s *Store) GetConfig(ctx context.Context, id string) (QuotaConfig, error) {
	row := s.queryRow(ctx,
		`SELECT `+configColumns+` FROM rate_limit_configs WHERE id = ?`, id)
	c, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return QuotaConfig{}, fmt.Errorf("config %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return QuotaConfig{}, fmt.Errorf("get config: %w", err)
	}
	return c, nil
}

// UpdateConfig applies the non-nil fields of update, re-validating the
// resulting quota.
func (s *Store) UpdateConfig(ctx context.Context, id string, update ConfigUpdate) (QuotaConfig, error) {
	c, err := s.GetConfig(ctx, id)
	if err != nil {
		return QuotaConfig{}, err
	}

	if update.Name != nil {
		c.Name = *update.Name
	}
	if update.Description != nil {
		c.Description = *update.Description
	}
	if update.MaxRequests != nil {
		c.MaxRequests = *update.MaxRequests
	}
	if update.WindowSeconds != nil {
		c.WindowSeconds = *update.WindowSeconds
	}
	if update.Active != nil {
		c.Active = *update.Active
	}
	if err := validateQuota(c.MaxRequests, c.WindowSeconds); err != nil {
		return QuotaConfig{}, err
	}
	c.UpdatedAt = now()

	_, err = s.exec(ctx,
		`UPDATE rate_limit_configs
		 SET name = ?, description = ?, max_requests = ?, window_seconds = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, c.Description, c.MaxRequests, c.WindowSeconds, c.Active, c.UpdatedAt, c.ID)
	if err != nil {
		return QuotaConfig{}, fmt.Errorf("update config: %w", err)
	}
	return c, nil
}

// DeleteConfig removes a config.
func (s *Store) DeleteConfig(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM rate_limit_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("config %s: %w", id, ErrNotFound)
	}
	return nil
}

// ActiveQuotas returns the tenant's active quotas in creation order,
// earliest first. This is the limiter.QuotaSource contract: the resolver
// takes the head.
func (s *Store) ActiveQuotas(ctx context.Context, tenantID string) ([]limiter.Quota, error) {
	rows, err := s.query(ctx,
		`SELECT id, tenant_id, max_requests, window_seconds FROM rate_limit_configs
		 WHERE tenant_id = ? AND active ORDER BY created_at ASC, id ASC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("load active quotas: %w", err)
	}
	defer rows.Close()

	var quotas []limiter.Quota
	for rows.Next() {
		var q limiter.Quota
		if err := rows.Scan(&q.ConfigID, &q.TenantID, &q.MaxRequests, &q.WindowSeconds); err != nil {
			return nil, err
		}
		quotas = append(quotas, q)
	}
	return quotas, rows.Err()
}

func validateQuota(maxRequests, windowSeconds int64) error {
	if maxRequests < 1 {
		return fmt.Errorf("%w: maxRequests must be positive, got %d", ErrInvalidQuota, maxRequests)
	}
	if windowSeconds < minWindowSeconds || windowSeconds > maxWindowSeconds {
		return fmt.Errorf("%w: windowSeconds must be in [%d, %d], got %d",
			ErrInvalidQuota, minWindowSeconds, maxWindowSeconds, windowSeconds)
	}
	return nil
}

func scanConfig(row rowScanner) (QuotaConfig, error) {
	var c QuotaConfig
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &c.MaxRequests,
		&c.WindowSeconds, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
