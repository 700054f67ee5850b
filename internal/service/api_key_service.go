package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/gymstack/facility-auth/internal/apikey"
	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/events"
)

// APIKeyService exposes key management to tenant admins and emits audit events.
type APIKeyService struct {
	authority *apikey.Authority
	events    events.Dispatcher
	logger    *zap.Logger
}

// NewAPIKeyService builds the service.
func NewAPIKeyService(authority *apikey.Authority, dispatcher events.Dispatcher, logger *zap.Logger) *APIKeyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIKeyService{authority: authority, events: dispatcher, logger: logger}
}

// Create issues a key for the caller's tenant.
func (s *APIKeyService) Create(ctx context.Context, actor *domain.Principal, in apikey.CreateInput) (*domain.APIKey, string, error) {
	in.TenantID = actor.TenantID
	key, plaintext, err := s.authority.Create(ctx, in)
	if err != nil {
		return nil, "", err
	}
	s.publish(ctx, events.EventAPIKeyCreated, actor, key.ID)
	return key, plaintext, nil
}

// Revoke deactivates one of the caller's tenant keys.
func (s *APIKeyService) Revoke(ctx context.Context, actor *domain.Principal, keyID string) error {
	if err := s.authority.Revoke(ctx, actor.TenantID, keyID); err != nil {
		return err
	}
	s.publish(ctx, events.EventAPIKeyRevoked, actor, keyID)
	return nil
}

// List returns the caller's tenant keys.
func (s *APIKeyService) List(ctx context.Context, actor *domain.Principal) ([]domain.APIKey, error) {
	return s.authority.List(ctx, actor.TenantID)
}

func (s *APIKeyService) publish(ctx context.Context, t events.EventType, actor *domain.Principal, keyID string) {
	events.Publish(ctx, s.events, s.logger, events.Event{
		Type:    t,
		Actor:   events.Actor{ID: actor.ID, Scope: string(actor.Scope), TenantID: actor.TenantID},
		Subject: keyID,
	})
}
