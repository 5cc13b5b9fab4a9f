package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// APIKey is a credential bound to one tenant. Only a SHA-256 digest of the
// key material is stored; the plaintext is handed out once, on creation.
type APIKey struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenantId"`
	Name       string     `json:"name"`
	Active     bool       `json:"active"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

const apiKeyColumns = "id, tenant_id, name, active, last_used_at, expires_at, created_at, updated_at"

// CreateAPIKey mints a key for the tenant and returns the record together
// with the plaintext key. expiresAt is optional.
func (s *Store) CreateAPIKey(ctx context.Context, tenantID, name string, expiresAt *time.Time) (APIKey, string, error) {
	if _, err := s.GetTenant(ctx, tenantID); err != nil {
		return APIKey{}, "", err
	}

	plaintext := generateKey()
	k := APIKey{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		Active:    true,
		ExpiresAt: expiresAt,
		CreatedAt: now(),
	}
	k.UpdatedAt = k.CreatedAt

	_, err := s.exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, key_hash, name, active, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.TenantID, hashKey(plaintext), k.Name, k.Active, k.ExpiresAt, k.CreatedAt, k.UpdatedAt)
	if err != nil {
		return APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	return k, plaintext, nil
}

// AuthenticateKey resolves a presented key to its record. It requires the
// key and its tenant to be active, rejects expired keys with ErrKeyExpired,
// and touches last_used_at on success (best effort).
func (s *Store) AuthenticateKey(ctx context.Context, presented string) (APIKey, error) {
	row := s.queryRow(ctx,
		`SELECT k.id, k.tenant_id, k.name, k.active, k.last_used_at, k.expires_at, k.created_at, k.updated_at
		 FROM api_keys k
		 JOIN tenants t ON t.id = k.tenant_id
		 WHERE k.key_hash = ? AND k.active AND t.active`,
		hashKey(presented))
	k, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return APIKey{}, fmt.Errorf("api key: %w", ErrNotFound)
	}
	if err != nil {
		return APIKey{}, fmt.Errorf("authenticate key: %w", err)
	}

	if k.ExpiresAt != nil && now().After(*k.ExpiresAt) {
		return APIKey{}, ErrKeyExpired
	}

	touched := now()
	if _, err := s.exec(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, touched, k.ID); err == nil {
		k.LastUsedAt = &touched
	}
	return k, nil
}

// ListAPIKeys returns the tenant's keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, tenantID string) ([]APIKey, error) {
	if _, err := s.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	rows, err := s.query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = ? ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey deactivates a key without deleting it.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	return s.setKeyActive(ctx, id, false)
}

// ActivateAPIKey reactivates a revoked key.
func (s *Store) ActivateAPIKey(ctx context.Context, id string) error {
	return s.setKeyActive(ctx, id, true)
}

func (s *Store) setKeyActive(ctx context.Context, id string, active bool) error {
	res, err := s.exec(ctx,
		`UPDATE api_keys SET active = ?, updated_at = ? WHERE id = ?`, active, now(), id)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api key %s: %w", id, ErrNotFound)
	}
	return nil
}

// generateKey mints key material: a recognizable prefix plus 64 hex chars.
func generateKey() string {
	raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	return "rl_" + raw
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func scanAPIKey(row rowScanner) (APIKey, error) {
	var (
		k        APIKey
		lastUsed sql.NullTime
		expires  sql.NullTime
	)
	err := row.Scan(&k.ID, &k.TenantID, &k.Name, &k.Active, &lastUsed, &expires, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return APIKey{}, err
	}
	if lastUsed.Valid {
		k.LastUsedAt = &lastUsed.Time
	}
	if expires.Valid {
		k.ExpiresAt = &expires.Time
	}
	return k, nil
}
