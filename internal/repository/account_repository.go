package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gymstack/facility-auth/internal/domain"
)

// AccountRepository defines persistence access for login-capable accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, scope domain.Scope, tenantID, email string) (*domain.Account, error)
	SetActive(ctx context.Context, id string, active bool) error
}

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

const accountColumns = `id, scope, tenant_id, email, name, password_hash, role, active, created_at, updated_at`

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO accounts (id, scope, tenant_id, email, name, password_hash, role, active)
        VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
        RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		account.ID,
		account.Scope,
		account.TenantID,
		strings.ToLower(account.Email),
		account.Name,
		account.PasswordHash,
		account.Role,
		account.Active,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	return translate(err)
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *accountRepository) GetByEmail(ctx context.Context, scope domain.Scope, tenantID, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + `
        FROM accounts
        WHERE scope=$1 AND COALESCE(tenant_id, '')=$2 AND lower(email)=lower($3)`
	return scanAccount(r.pool.QueryRow(ctx, query, scope, tenantID, email))
}

func (r *accountRepository) SetActive(ctx context.Context, id string, active bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE accounts SET active=$1, updated_at=NOW() WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		account  domain.Account
		tenantID *string
	)
	if err := row.Scan(
		&account.ID,
		&account.Scope,
		&tenantID,
		&account.Email,
		&account.Name,
		&account.PasswordHash,
		&account.Role,
		&account.Active,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	if tenantID != nil {
		account.TenantID = *tenantID
	}
	return &account, nil
}
