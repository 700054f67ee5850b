package auth

import (
	"net/http"

	"github.com/gymstack/facility-auth/pkg/util/errorutil"
)

// Credential outcomes. Each is a sentinel matched with errors.Is; wrapped copies
// produced via Wrap or WithMessage keep the same code.
var (
	ErrNoCredential               = errorutil.NewDomainError("CREDENTIAL_MISSING", "no credential presented", http.StatusUnauthorized, nil)
	ErrMalformedCredential        = errorutil.NewDomainError("CREDENTIAL_MALFORMED", "credential is malformed", http.StatusUnauthorized, nil)
	ErrExpiredCredential          = errorutil.NewDomainError("CREDENTIAL_EXPIRED", "credential has expired", http.StatusUnauthorized, nil)
	ErrRevokedCredential          = errorutil.NewDomainError("CREDENTIAL_REVOKED", "credential has been revoked", http.StatusUnauthorized, nil)
	ErrSessionTimeoutExceeded     = errorutil.NewDomainError("SESSION_TIMEOUT_EXCEEDED", "session exceeded its maximum duration; sign in again", http.StatusUnauthorized, nil)
	ErrInvalidCredential          = errorutil.NewDomainError("CREDENTIAL_INVALID", "credential is invalid", http.StatusUnauthorized, nil)
	ErrScopeMismatch              = errorutil.NewDomainError("SCOPE_MISMATCH", "credential scope not allowed for this endpoint", http.StatusForbidden, nil)
	ErrInsufficientPermission     = errorutil.NewDomainError("INSUFFICIENT_PERMISSION", "missing required permission", http.StatusForbidden, nil)
	ErrTenantMismatch             = errorutil.NewDomainError("TENANT_MISMATCH", "credential is bound to another tenant", http.StatusForbidden, nil)
	ErrImpersonationWriteBlocked  = errorutil.NewDomainError("IMPERSONATION_READ_ONLY", "forbidden: impersonation is read-only", http.StatusForbidden, nil)
	ErrRateLimited                = errorutil.NewDomainError("RATE_LIMITED", "rate limit exceeded", http.StatusTooManyRequests, nil)
	ErrCredentialStoreUnavailable = errorutil.NewDomainError("AUTH_BACKEND_UNAVAILABLE", "authentication backend unavailable", http.StatusServiceUnavailable, nil)

	ErrInvalidInput = errorutil.NewDomainError("VALIDATION_FAILED", "invalid token request", http.StatusBadRequest, nil)
)
