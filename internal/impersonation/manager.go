// Package impersonation lets platform staff act as a tenant user in a read-only,
// fully audited session.
package impersonation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/events"
	"github.com/gymstack/facility-auth/internal/observability"
	"github.com/gymstack/facility-auth/internal/reqctx"
	"github.com/gymstack/facility-auth/internal/repository"
)

const (
	defaultTTL     = time.Hour
	maxReasonLen   = 500
	defaultHistory = 50
)

// Config wires a Manager.
type Config struct {
	Sessions repository.ImpersonationRepository
	Accounts repository.AccountRepository
	Tokens   *auth.TokenManager
	Events   events.Dispatcher
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	TTL      time.Duration
	Clock    func() time.Time
}

// Manager owns the impersonation session lifecycle.
type Manager struct {
	sessions repository.ImpersonationRepository
	accounts repository.AccountRepository
	tokens   *auth.TokenManager
	events   events.Dispatcher
	metrics  *observability.Metrics
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time
}

// NewManager builds a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Manager{
		sessions: cfg.Sessions,
		accounts: cfg.Accounts,
		tokens:   cfg.Tokens,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.Named("impersonation"),
		ttl:      cfg.TTL,
		now:      cfg.Clock,
	}
}

// StartInput names the actor and the tenant user to act as.
type StartInput struct {
	ImpersonatorID string
	TargetUserID   string
	TargetTenantID string
	Reason         string
}

// StartResult is returned by a successful Start.
type StartResult struct {
	Session *domain.ImpersonationSession
	Token   *auth.Token
}

// Start opens a session for the impersonator. It fails with ErrAlreadyImpersonating
// while another session of the same impersonator is active. The returned context
// carries the impersonation slots.
func (m *Manager) Start(ctx context.Context, in StartInput) (context.Context, *StartResult, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if in.ImpersonatorID == "" || in.TargetUserID == "" || in.TargetTenantID == "" {
		return ctx, nil, auth.ErrInvalidInput.WithMessage("impersonator, target user and target tenant are required")
	}
	if len(in.Reason) > maxReasonLen {
		return ctx, nil, auth.ErrInvalidInput.WithMessage("reason must be at most 500 characters")
	}

	actor, err := m.accounts.GetByID(ctx, in.ImpersonatorID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ctx, nil, ErrInvalidImpersonator
	case err != nil:
		return ctx, nil, err
	}
	if actor.Scope != domain.ScopePlatform || !actor.Active {
		return ctx, nil, ErrInvalidImpersonator
	}

	target, err := m.accounts.GetByID(ctx, in.TargetUserID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ctx, nil, ErrInvalidTarget.WithMessage("target user not found")
	case err != nil:
		return ctx, nil, err
	}
	if target.Scope != domain.ScopeFacility || target.TenantID != in.TargetTenantID {
		return ctx, nil, ErrInvalidTarget.WithMessage("target user does not belong to the target tenant")
	}
	if !target.Active {
		return ctx, nil, ErrInvalidTarget.WithMessage("target user is inactive")
	}

	if _, err := m.activeSession(ctx, in.ImpersonatorID); err == nil {
		return ctx, nil, ErrAlreadyImpersonating
	} else if !errors.Is(err, ErrNoActiveSession) {
		return ctx, nil, err
	}

	now := m.now().UTC()
	session := &domain.ImpersonationSession{
		ID:             uuid.NewString(),
		ImpersonatorID: in.ImpersonatorID,
		TargetUserID:   target.ID,
		TargetTenantID: target.TenantID,
		TargetRole:     target.Role,
		Reason:         in.Reason,
		Status:         domain.ImpersonationActive,
		StartedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ctx, nil, ErrAlreadyImpersonating
		}
		return ctx, nil, err
	}

	token, err := m.tokens.IssueImpersonationToken(session)
	if err != nil {
		if closeErr := m.sessions.Close(ctx, session.ID, domain.ImpersonationEnded, now, in.ImpersonatorID); closeErr != nil {
			m.logger.Error("failed to close session after token error", zap.String("session_id", session.ID), zap.Error(closeErr))
		}
		return ctx, nil, err
	}

	m.metrics.ImpersonationStarted()
	m.logger.Info("impersonation started",
		zap.String("session_id", session.ID),
		zap.String("impersonator_id", session.ImpersonatorID),
		zap.String("target_user_id", session.TargetUserID),
		zap.String("target_tenant_id", session.TargetTenantID),
		zap.Time("expires_at", session.ExpiresAt),
	)
	m.publish(ctx, events.EventImpersonationStarted, session, map[string]string{"reason": session.Reason})

	return reqctx.WithImpersonation(ctx, session), &StartResult{Session: session, Token: token}, nil
}

// RecordAction appends entry to the impersonator's active session log. A missing
// session or a store failure is logged and otherwise ignored.
func (m *Manager) RecordAction(ctx context.Context, impersonatorID, entry string) {
	session, err := m.activeSession(ctx, impersonatorID)
	if err != nil {
		if !errors.Is(err, ErrNoActiveSession) {
			m.metrics.RecordAuditAction("error")
			m.logger.Error("impersonation lookup failed; action not recorded",
				zap.String("impersonator_id", impersonatorID), zap.String("entry", entry), zap.Error(err))
		}
		return
	}

	action, err := m.sessions.AppendAction(ctx, session.ID, entry, m.now())
	if err != nil {
		m.metrics.RecordAuditAction("error")
		m.logger.Error("impersonation action not recorded",
			zap.String("session_id", session.ID), zap.String("entry", entry), zap.Error(err))
		return
	}
	m.metrics.RecordAuditAction("recorded")
	m.logger.Debug("impersonation action recorded",
		zap.String("session_id", session.ID), zap.Int64("seq", action.Seq), zap.String("entry", entry))
}

// End closes the impersonator's active session. The returned context has the
// impersonation slots cleared.
func (m *Manager) End(ctx context.Context, impersonatorID string) (context.Context, *domain.ImpersonationSession, error) {
	session, err := m.activeSession(ctx, impersonatorID)
	if err != nil {
		return ctx, nil, err
	}
	closed, err := m.close(ctx, session, domain.ImpersonationEnded, impersonatorID)
	if err != nil {
		return ctx, nil, err
	}
	return reqctx.WithoutImpersonation(ctx), closed, nil
}

// ForceEnd lets another platform actor terminate any active session.
func (m *Manager) ForceEnd(ctx context.Context, sessionID, endedBy string) (*domain.ImpersonationSession, error) {
	session, err := m.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.Status != domain.ImpersonationActive {
		return nil, ErrNoActiveSession
	}
	return m.close(ctx, session, domain.ImpersonationForceEnded, endedBy)
}

// ActiveSession returns the impersonator's open session or nil. A session past its
// expiry is closed as EXPIRED and reported as absent.
func (m *Manager) ActiveSession(ctx context.Context, impersonatorID string) (*domain.ImpersonationSession, error) {
	session, err := m.activeSession(ctx, impersonatorID)
	if errors.Is(err, ErrNoActiveSession) {
		return nil, nil
	}
	return session, err
}

// IsImpersonating reports whether ctx belongs to an impersonation session.
func (m *Manager) IsImpersonating(ctx context.Context) bool {
	return reqctx.IsImpersonating(ctx)
}

// Session returns one session with its action log.
func (m *Manager) Session(ctx context.Context, sessionID string) (*domain.ImpersonationSession, error) {
	session, err := m.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// ListActive returns every open session, oldest first.
func (m *Manager) ListActive(ctx context.Context) ([]domain.ImpersonationSession, error) {
	return m.sessions.ListActive(ctx)
}

// History returns the impersonator's sessions, newest first.
func (m *Manager) History(ctx context.Context, impersonatorID string, limit int) ([]domain.ImpersonationSession, error) {
	if limit <= 0 {
		limit = defaultHistory
	}
	return m.sessions.ListByImpersonator(ctx, impersonatorID, limit)
}

// ExpireStale closes every open session past its expiry and reports how many it
// closed. Sessions are also expired lazily on lookup.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	sessions, err := m.sessions.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	now := m.now()
	closed := 0
	for i := range sessions {
		if sessions[i].IsActive(now) {
			continue
		}
		if _, err := m.close(ctx, &sessions[i], domain.ImpersonationExpired, ""); err != nil {
			if errors.Is(err, ErrNoActiveSession) {
				continue
			}
			return closed, err
		}
		closed++
	}
	return closed, nil
}

func (m *Manager) activeSession(ctx context.Context, impersonatorID string) (*domain.ImpersonationSession, error) {
	if impersonatorID == "" {
		return nil, ErrNoActiveSession
	}
	session, err := m.sessions.FindActiveByImpersonator(ctx, impersonatorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	if !session.IsActive(m.now()) {
		if _, err := m.close(ctx, session, domain.ImpersonationExpired, ""); err != nil && !errors.Is(err, ErrNoActiveSession) {
			return nil, err
		}
		return nil, ErrNoActiveSession
	}
	return session, nil
}

func (m *Manager) close(ctx context.Context, session *domain.ImpersonationSession, status domain.ImpersonationStatus, endedBy string) (*domain.ImpersonationSession, error) {
	endedAt := m.now().UTC()
	if status == domain.ImpersonationExpired {
		endedAt = session.ExpiresAt
	}
	err := m.sessions.Close(ctx, session.ID, status, endedAt, endedBy)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}

	closed := *session
	closed.Status = status
	closed.EndedAt = &endedAt
	closed.EndedBy = endedBy

	eventType := events.EventImpersonationEnded
	switch status {
	case domain.ImpersonationExpired:
		eventType = events.EventImpersonationExpired
	case domain.ImpersonationForceEnded:
		eventType = events.EventImpersonationForceEnd
	}
	m.metrics.ImpersonationClosed(strings.ToLower(string(status)))
	m.logger.Info("impersonation closed",
		zap.String("session_id", closed.ID),
		zap.String("impersonator_id", closed.ImpersonatorID),
		zap.String("status", string(status)),
		zap.String("ended_by", endedBy),
	)
	m.publish(ctx, eventType, &closed, map[string]string{"ended_by": endedBy})
	return &closed, nil
}

func (m *Manager) publish(ctx context.Context, t events.EventType, session *domain.ImpersonationSession, attrs map[string]string) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["session_id"] = session.ID
	attrs["target_tenant_id"] = session.TargetTenantID
	events.Publish(ctx, m.events, m.logger, events.Event{
		Type:    t,
		Actor:   events.Actor{ID: session.ImpersonatorID, Scope: string(domain.ScopePlatform)},
		Subject: session.TargetUserID,
		Attrs:   attrs,
	})
}
