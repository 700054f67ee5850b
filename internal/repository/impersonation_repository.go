package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gymstack/facility-auth/internal/domain"
)

// ImpersonationRepository persists impersonation sessions and their action logs.
// Sessions are never deleted.
type ImpersonationRepository interface {
	// Create stores a new session. It returns ErrConflict when the impersonator
	// already has an ACTIVE session.
	Create(ctx context.Context, session *domain.ImpersonationSession) error
	GetByID(ctx context.Context, id string) (*domain.ImpersonationSession, error)
	FindActiveByImpersonator(ctx context.Context, impersonatorID string) (*domain.ImpersonationSession, error)
	// Close moves an ACTIVE session to status. It returns ErrNotFound when the
	// session is not ACTIVE.
	Close(ctx context.Context, id string, status domain.ImpersonationStatus, endedAt time.Time, endedBy string) error
	// AppendAction chains entry onto the log of an ACTIVE session.
	AppendAction(ctx context.Context, sessionID, entry string, at time.Time) (*domain.ImpersonationAction, error)
	ListActions(ctx context.Context, sessionID string) ([]domain.ImpersonationAction, error)
	ListActive(ctx context.Context) ([]domain.ImpersonationSession, error)
	ListByImpersonator(ctx context.Context, impersonatorID string, limit int) ([]domain.ImpersonationSession, error)
}

type impersonationRepository struct {
	pool *pgxpool.Pool
}

// NewImpersonationRepository returns a Postgres-backed implementation.
func NewImpersonationRepository(pool *pgxpool.Pool) ImpersonationRepository {
	return &impersonationRepository{pool: pool}
}

const sessionColumns = `id, impersonator_id, target_user_id, target_tenant_id, target_role, reason, status, started_at, expires_at, ended_at, ended_by`

func (r *impersonationRepository) Create(ctx context.Context, session *domain.ImpersonationSession) error {
	const query = `
        INSERT INTO impersonation_sessions
            (id, impersonator_id, target_user_id, target_tenant_id, target_role, reason, status, started_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.ImpersonatorID,
		session.TargetUserID,
		session.TargetTenantID,
		session.TargetRole,
		session.Reason,
		session.Status,
		session.StartedAt,
		session.ExpiresAt,
	)
	return translate(err)
}

func (r *impersonationRepository) GetByID(ctx context.Context, id string) (*domain.ImpersonationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM impersonation_sessions WHERE id=$1`
	session, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	session.Actions, err = r.ListActions(ctx, id)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *impersonationRepository) FindActiveByImpersonator(ctx context.Context, impersonatorID string) (*domain.ImpersonationSession, error) {
	query := `SELECT ` + sessionColumns + `
        FROM impersonation_sessions
        WHERE impersonator_id=$1 AND status='ACTIVE'`
	return scanSession(r.pool.QueryRow(ctx, query, impersonatorID))
}

func (r *impersonationRepository) Close(ctx context.Context, id string, status domain.ImpersonationStatus, endedAt time.Time, endedBy string) error {
	const query = `
        UPDATE impersonation_sessions SET status=$2, ended_at=$3, ended_by=NULLIF($4, '')
        WHERE id=$1 AND status='ACTIVE'`

	cmd, err := r.pool.Exec(ctx, query, id, status, endedAt, endedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *impersonationRepository) AppendAction(ctx context.Context, sessionID, entry string, at time.Time) (*domain.ImpersonationAction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Locking the session row serializes appends and excludes a concurrent close.
	var status domain.ImpersonationStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM impersonation_sessions WHERE id=$1 FOR UPDATE`, sessionID).Scan(&status); err != nil {
		return nil, translate(err)
	}
	if status != domain.ImpersonationActive {
		return nil, ErrNotFound
	}

	var prev *domain.ImpersonationAction
	last, err := scanAction(tx.QueryRow(ctx, `
        SELECT session_id, seq, entry, recorded_at, prev_hash, hash
        FROM impersonation_actions WHERE session_id=$1 ORDER BY seq DESC LIMIT 1`, sessionID))
	switch {
	case err == nil:
		prev = last
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	action := domain.NextAction(sessionID, prev, entry, at)
	if _, err := tx.Exec(ctx, `
        INSERT INTO impersonation_actions (session_id, seq, entry, recorded_at, prev_hash, hash)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		action.SessionID, action.Seq, action.Entry, action.RecordedAt, action.PrevHash, action.Hash,
	); err != nil {
		return nil, translate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &action, nil
}

func (r *impersonationRepository) ListActions(ctx context.Context, sessionID string) ([]domain.ImpersonationAction, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT session_id, seq, entry, recorded_at, prev_hash, hash
        FROM impersonation_actions WHERE session_id=$1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ImpersonationAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *action)
	}
	return result, rows.Err()
}

func (r *impersonationRepository) ListActive(ctx context.Context) ([]domain.ImpersonationSession, error) {
	query := `SELECT ` + sessionColumns + `
        FROM impersonation_sessions WHERE status='ACTIVE' ORDER BY started_at`
	return r.listSessions(ctx, query)
}

func (r *impersonationRepository) ListByImpersonator(ctx context.Context, impersonatorID string, limit int) ([]domain.ImpersonationSession, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + sessionColumns + `
        FROM impersonation_sessions WHERE impersonator_id=$1
        ORDER BY started_at DESC LIMIT $2`
	return r.listSessions(ctx, query, impersonatorID, limit)
}

func (r *impersonationRepository) listSessions(ctx context.Context, query string, args ...any) ([]domain.ImpersonationSession, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ImpersonationSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *session)
	}
	return result, rows.Err()
}

func scanSession(row rowScanner) (*domain.ImpersonationSession, error) {
	var (
		session domain.ImpersonationSession
		endedBy *string
	)
	if err := row.Scan(
		&session.ID,
		&session.ImpersonatorID,
		&session.TargetUserID,
		&session.TargetTenantID,
		&session.TargetRole,
		&session.Reason,
		&session.Status,
		&session.StartedAt,
		&session.ExpiresAt,
		&session.EndedAt,
		&endedBy,
	); err != nil {
		return nil, translate(err)
	}
	if endedBy != nil {
		session.EndedBy = *endedBy
	}
	return &session, nil
}

func scanAction(row rowScanner) (*domain.ImpersonationAction, error) {
	var action domain.ImpersonationAction
	if err := row.Scan(
		&action.SessionID,
		&action.Seq,
		&action.Entry,
		&action.RecordedAt,
		&action.PrevHash,
		&action.Hash,
	); err != nil {
		return nil, translate(err)
	}
	action.RecordedAt = action.RecordedAt.UTC()
	return &action, nil
}
