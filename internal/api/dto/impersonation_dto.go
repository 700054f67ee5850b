package dto

import (
	"time"

	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/impersonation"
)

// StartImpersonationRequest payload for opening a session.
type StartImpersonationRequest struct {
	TargetUserID   string `json:"target_user_id"`
	TargetTenantID string `json:"target_tenant_id"`
	Reason         string `json:"reason"`
}

// ImpersonationActionResponse is one entry of a session's action log.
type ImpersonationActionResponse struct {
	Seq        int64     `json:"seq"`
	Entry      string    `json:"entry"`
	RecordedAt time.Time `json:"recorded_at"`
	Hash       string    `json:"hash"`
}

// ImpersonationSessionResponse renders a session.
type ImpersonationSessionResponse struct {
	ID             string                        `json:"id"`
	ImpersonatorID string                        `json:"impersonator_id"`
	TargetUserID   string                        `json:"target_user_id"`
	TargetTenantID string                        `json:"target_tenant_id"`
	TargetRole     string                        `json:"target_role"`
	Reason         string                        `json:"reason,omitempty"`
	Status         string                        `json:"status"`
	StartedAt      time.Time                     `json:"started_at"`
	ExpiresAt      time.Time                     `json:"expires_at"`
	EndedAt        *time.Time                    `json:"ended_at,omitempty"`
	EndedBy        string                        `json:"ended_by,omitempty"`
	Actions        []ImpersonationActionResponse `json:"actions,omitempty"`
}

// StartImpersonationResponse returns the session and its acting-as token.
type StartImpersonationResponse struct {
	Session ImpersonationSessionResponse `json:"session"`
	Auth    TokenResponse                `json:"auth"`
}

// ChainReportResponse renders an action log verification.
type ChainReportResponse struct {
	SessionID string `json:"session_id"`
	Actions   int    `json:"actions"`
	Valid     bool   `json:"valid"`
	BrokenAt  int64  `json:"broken_at,omitempty"`
}

// NewImpersonationSessionResponse renders s including any loaded actions.
func NewImpersonationSessionResponse(s *domain.ImpersonationSession) ImpersonationSessionResponse {
	resp := ImpersonationSessionResponse{
		ID:             s.ID,
		ImpersonatorID: s.ImpersonatorID,
		TargetUserID:   s.TargetUserID,
		TargetTenantID: s.TargetTenantID,
		TargetRole:     s.TargetRole,
		Reason:         s.Reason,
		Status:         string(s.Status),
		StartedAt:      s.StartedAt,
		ExpiresAt:      s.ExpiresAt,
		EndedAt:        s.EndedAt,
		EndedBy:        s.EndedBy,
	}
	for _, a := range s.Actions {
		resp.Actions = append(resp.Actions, ImpersonationActionResponse{
			Seq:        a.Seq,
			Entry:      a.Entry,
			RecordedAt: a.RecordedAt,
			Hash:       a.Hash,
		})
	}
	return resp
}

// NewImpersonationSessionList renders sessions.
func NewImpersonationSessionList(sessions []domain.ImpersonationSession) []ImpersonationSessionResponse {
	out := make([]ImpersonationSessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, NewImpersonationSessionResponse(&sessions[i]))
	}
	return out
}

// NewChainReportResponse renders r.
func NewChainReportResponse(r *impersonation.ChainReport) ChainReportResponse {
	return ChainReportResponse{SessionID: r.SessionID, Actions: r.Actions, Valid: r.Valid, BrokenAt: r.BrokenAt}
}
