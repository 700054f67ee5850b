package events

import "time"

// EventType enumerates security events published by the auth core.
type EventType string

const (
	EventLoginSucceeded        EventType = "login_succeeded"
	EventLoginFailed           EventType = "login_failed"
	EventLogout                EventType = "logout"
	EventRefreshReuseDetected  EventType = "refresh_reuse_detected"
	EventAPIKeyCreated         EventType = "api_key_created"
	EventAPIKeyRevoked         EventType = "api_key_revoked"
	EventImpersonationStarted  EventType = "impersonation_started"
	EventImpersonationEnded    EventType = "impersonation_ended"
	EventImpersonationExpired  EventType = "impersonation_expired"
	EventImpersonationForceEnd EventType = "impersonation_force_ended"
	EventImpersonationBlocked  EventType = "impersonation_write_blocked"
)

// AllTypes lists every event type, for subscribers that want them all.
var AllTypes = []EventType{
	EventLoginSucceeded, EventLoginFailed, EventLogout, EventRefreshReuseDetected,
	EventAPIKeyCreated, EventAPIKeyRevoked,
	EventImpersonationStarted, EventImpersonationEnded, EventImpersonationExpired,
	EventImpersonationForceEnd, EventImpersonationBlocked,
}

// Actor identifies who caused an event.
type Actor struct {
	ID       string `json:"id"`
	Scope    string `json:"scope,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Event represents a security event emitted by services.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Actor     Actor             `json:"actor"`
	Subject   string            `json:"subject,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}
