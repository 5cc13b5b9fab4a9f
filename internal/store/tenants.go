package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tenant is an administrative client whose requests are limited as a unit.
type Tenant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	ContactEmail string    `json:"contactEmail,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TenantParams carries the writable fields for tenant creation.
type TenantParams struct {
	Name         string
	Description  string
	ContactEmail string
}

// TenantUpdate carries optional field updates; nil fields are left untouched.
type TenantUpdate struct {
	Name         *string
	Description  *string
	ContactEmail *string
	Active       *bool
}

const tenantColumns = "id, name, description, contact_email, active, created_at, updated_at"

// CreateTenant inserts a tenant. Names are unique; a duplicate yields
// ErrConflict.
func (s *Store) CreateTenant(ctx context.Context, params TenantParams) (Tenant, error) {
	if taken, err := s.tenantNameTaken(ctx, params.Name); err != nil {
		return Tenant{}, err
	} else if taken {
		return Tenant{}, fmt.Errorf("tenant name %q: %w", params.Name, ErrConflict)
	}

	t := Tenant{
		ID:           uuid.NewString(),
		Name:         params.Name,
		Description:  params.Description,
		ContactEmail: params.ContactEmail,
		Active:       true,
		CreatedAt:    now(),
	}
	t.UpdatedAt = t.CreatedAt

	_, err := s.exec(ctx,
		`INSERT INTO tenants (`+tenantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, t.ContactEmail, t.Active, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	return t, nil
}

// ListTenants returns all tenants, newest first.
func (s *Store) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := s.query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// GetTenant returns one tenant by id, or ErrNotFound.
func (s *Store) GetTenant(ctx context.Context, id string) (Tenant, error) {
	row := s.queryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return Tenant{}, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// UpdateTenant applies the non-nil fields of update and returns the result.
// Renaming onto an existing name yields ErrConflict.
func (s *Store) UpdateTenant(ctx context.Context, id string, update TenantUpdate) (Tenant, error) {
	t, err := s.GetTenant(ctx, id)
	if err != nil {
		return Tenant{}, err
	}

	if update.Name != nil && *update.Name != t.Name {
		if taken, err := s.tenantNameTaken(ctx, *update.Name); err != nil {
			return Tenant{}, err
		} else if taken {
			return Tenant{}, fmt.Errorf("tenant name %q: %w", *update.Name, ErrConflict)
		}
		t.Name = *update.Name
	}
	if update.Description != nil {
		t.Description = *update.Description
	}
	if update.ContactEmail != nil {
		t.ContactEmail = *update.ContactEmail
	}
	if update.Active != nil {
		t.Active = *update.Active
	}
	t.UpdatedAt = now()

	_, err = s.exec(ctx,
		`UPDATE tenants SET name = ?, description = ?, contact_email = ?, active = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.Description, t.ContactEmail, t.Active, t.UpdatedAt, t.ID)
	if err != nil {
		return Tenant{}, fmt.Errorf("update tenant: %w", err)
	}
	return t, nil
}

// DeleteTenant removes a tenant. API keys and quota configs owned by the
// tenant are removed with it via FK cascade.
func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) tenantNameTaken(ctx context.Context, name string) (bool, error) {
	var id string
	err := s.queryRow(ctx, `SELECT id FROM tenants WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check tenant name: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.ContactEmail, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}
