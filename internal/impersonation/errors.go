package impersonation

import (
	"net/http"

	"github.com/gymstack/facility-auth/pkg/util/errorutil"
)

var (
	ErrAlreadyImpersonating = errorutil.NewDomainError("IMPERSONATION_ALREADY_ACTIVE", "an impersonation session is already active", http.StatusConflict, nil)
	ErrNoActiveSession      = errorutil.NewDomainError("IMPERSONATION_NOT_ACTIVE", "no active impersonation session", http.StatusNotFound, nil)
	ErrSessionNotFound      = errorutil.NewDomainError("IMPERSONATION_SESSION_NOT_FOUND", "impersonation session not found", http.StatusNotFound, nil)
	ErrInvalidTarget        = errorutil.NewDomainError("IMPERSONATION_TARGET_INVALID", "target user cannot be impersonated", http.StatusUnprocessableEntity, nil)
	ErrInvalidImpersonator  = errorutil.NewDomainError("IMPERSONATION_ACTOR_INVALID", "only active platform accounts may impersonate", http.StatusForbidden, nil)
)
