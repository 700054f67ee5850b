package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// ImpersonationStatus enumerates session lifecycle states.
type ImpersonationStatus string

const (
	ImpersonationActive     ImpersonationStatus = "ACTIVE"
	ImpersonationEnded      ImpersonationStatus = "ENDED"
	ImpersonationExpired    ImpersonationStatus = "EXPIRED"
	ImpersonationForceEnded ImpersonationStatus = "FORCE_ENDED"
)

// ImpersonationSession records a platform actor acting as a tenant user.
type ImpersonationSession struct {
	ID             string
	ImpersonatorID string
	TargetUserID   string
	TargetTenantID string
	TargetRole     string
	Reason         string
	Status         ImpersonationStatus
	StartedAt      time.Time
	ExpiresAt      time.Time
	EndedAt        *time.Time
	EndedBy        string
	Actions        []ImpersonationAction
}

// IsActive reports whether the session is open and not past its expiry at now.
func (s *ImpersonationSession) IsActive(now time.Time) bool {
	return s != nil && s.Status == ImpersonationActive && now.Before(s.ExpiresAt)
}

// ImpersonationAction is one entry of the append-only action log.
type ImpersonationAction struct {
	SessionID  string
	Seq        int64
	Entry      string
	RecordedAt time.Time
	PrevHash   string
	Hash       string
}

// GenesisActionHash anchors the first action of every session.
const GenesisActionHash = "0000000000000000000000000000000000000000000000000000000000000000"

// NextAction builds the action following prev (nil for the first one).
func NextAction(sessionID string, prev *ImpersonationAction, entry string, at time.Time) ImpersonationAction {
	action := ImpersonationAction{
		SessionID:  sessionID,
		Seq:        1,
		Entry:      entry,
		RecordedAt: at.UTC().Truncate(time.Microsecond),
		PrevHash:   GenesisActionHash,
	}
	if prev != nil {
		action.Seq = prev.Seq + 1
		action.PrevHash = prev.Hash
	}
	action.Hash = ActionHash(action)
	return action
}

// ActionHash computes the chained hash of a.
func ActionHash(a ImpersonationAction) string {
	h := sha256.New()
	h.Write([]byte(a.PrevHash))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(a.Seq, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(a.Entry))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(a.RecordedAt.UTC().UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}
