package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gymstack/facility-auth/internal/domain"
)

// APIKeyRepository defines persistence access for tenant API keys.
type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByPrefix(ctx context.Context, prefix string) (*domain.APIKey, error)
	ListByTenant(ctx context.Context, tenantID string) ([]domain.APIKey, error)
	// Revoke marks the key revoked. Revoking an already revoked key succeeds and
	// keeps the first timestamp. Keys of other tenants are reported as not found.
	Revoke(ctx context.Context, tenantID, id string, at time.Time) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

type apiKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns a Postgres-backed implementation.
func NewAPIKeyRepository(pool *pgxpool.Pool) APIKeyRepository {
	return &apiKeyRepository{pool: pool}
}

const apiKeyColumns = `id, tenant_id, name, prefix, secret_hash, permissions, rate_limit, active, expires_at, last_used_at, revoked_at, created_at`

func (r *apiKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	const query = `
        INSERT INTO api_keys (id, tenant_id, name, prefix, secret_hash, permissions, rate_limit, active, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at`

	err := r.pool.QueryRow(ctx, query,
		key.ID,
		key.TenantID,
		key.Name,
		key.Prefix,
		key.SecretHash,
		key.Permissions,
		key.RateLimit,
		key.Active,
		key.ExpiresAt,
	).Scan(&key.CreatedAt)
	return translate(err)
}

func (r *apiKeyRepository) GetByPrefix(ctx context.Context, prefix string) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE prefix=$1`
	return scanAPIKey(r.pool.QueryRow(ctx, query, prefix))
}

func (r *apiKeyRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE tenant_id=$1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *key)
	}
	return result, rows.Err()
}

func (r *apiKeyRepository) Revoke(ctx context.Context, tenantID, id string, at time.Time) error {
	const query = `
        UPDATE api_keys SET active=FALSE, revoked_at=COALESCE(revoked_at, $3)
        WHERE id=$1 AND tenant_id=$2`

	cmd, err := r.pool.Exec(ctx, query, id, tenantID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *apiKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at=$2 WHERE id=$1`, id, at)
	return err
}

func scanAPIKey(row rowScanner) (*domain.APIKey, error) {
	var key domain.APIKey
	if err := row.Scan(
		&key.ID,
		&key.TenantID,
		&key.Name,
		&key.Prefix,
		&key.SecretHash,
		&key.Permissions,
		&key.RateLimit,
		&key.Active,
		&key.ExpiresAt,
		&key.LastUsedAt,
		&key.RevokedAt,
		&key.CreatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &key, nil
}
