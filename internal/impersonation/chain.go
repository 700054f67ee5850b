package impersonation

import (
	"context"

	"github.com/gymstack/facility-auth/internal/domain"
)

// ChainReport is the result of re-computing a session's action hashes.
type ChainReport struct {
	SessionID string
	Actions   int
	Valid     bool
	// BrokenAt is the 1-based position of the first inconsistent action, or 0.
	BrokenAt int64
}

// VerifyActionLog recomputes the hash chain of sessionID.
func (m *Manager) VerifyActionLog(ctx context.Context, sessionID string) (*ChainReport, error) {
	session, err := m.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	report := &ChainReport{SessionID: sessionID, Actions: len(session.Actions), Valid: true}
	if seq := VerifyChain(session.Actions); seq != 0 {
		report.Valid = false
		report.BrokenAt = seq
	}
	return report, nil
}

// VerifyChain returns the 1-based position of the first action whose link or hash
// does not match, or 0 when the chain is intact.
func VerifyChain(actions []domain.ImpersonationAction) int64 {
	prevHash := domain.GenesisActionHash
	for i, action := range actions {
		if action.Seq != int64(i+1) || action.PrevHash != prevHash || domain.ActionHash(action) != action.Hash {
			return int64(i + 1)
		}
		prevHash = action.Hash
	}
	return 0
}
