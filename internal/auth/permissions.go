package auth

import (
	"sort"
	"strings"

	"github.com/gymstack/facility-auth/internal/domain"
)

// ReadOnlySuffix marks permissions that never mutate state.
const ReadOnlySuffix = ".view"

// Platform roles.
const (
	RolePlatformSuperAdmin = "PLATFORM_SUPER_ADMIN"
	RolePlatformAdmin      = "PLATFORM_ADMIN"
	RoleAccountManager     = "ACCOUNT_MANAGER"
	RoleSupportLead        = "SUPPORT_LEAD"
	RoleSupportAgent       = "SUPPORT_AGENT"
	RolePlatformViewer     = "PLATFORM_VIEWER"
)

// Facility, member and trainer roles.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleClubAdmin  = "CLUB_ADMIN"
	RoleStaff      = "STAFF"
	RoleMember     = "MEMBER"
	RoleTrainer    = "TRAINER"

	// RoleAPIKey is carried by principals materialized from an API key.
	RoleAPIKey = "API_KEY"
)

// Permission keys referenced by route guards.
const (
	PermImpersonationStart  = "platform.impersonation.start"
	PermImpersonationManage = "platform.impersonation.manage"
	PermImpersonationView   = "platform.impersonation.view"
	PermAPIKeyManage        = "apikey.manage"
	PermAPIKeyView          = "apikey.view"
)

var (
	platformView = []string{
		"platform.tenants.view",
		"platform.subscriptions.view",
		"platform.invoices.view",
		"platform.support.view",
		"platform.analytics.view",
		PermImpersonationView,
	}
	platformSupport = []string{
		"platform.support.reply",
		PermImpersonationStart,
	}
	platformAccount = []string{
		"platform.tenants.update",
		"platform.subscriptions.update",
		"platform.invoices.create",
	}
	platformAdmin = []string{
		"platform.tenants.create",
		"platform.tenants.suspend",
		"platform.users.manage",
		PermImpersonationManage,
	}
	platformSuper = []string{
		"platform.tenants.delete",
		"platform.settings.manage",
	}

	facilityView = []string{
		"member.view",
		"booking.view",
		"class.view",
		"payment.view",
		"report.view",
		PermAPIKeyView,
	}
	facilityStaff = []string{
		"member.create",
		"member.update",
		"booking.create",
		"booking.cancel",
		"checkin.create",
	}
	facilityAdmin = []string{
		"member.delete",
		"class.manage",
		"payment.refund",
		"staff.manage",
		PermAPIKeyManage,
	}
	facilitySuper = []string{
		"settings.manage",
		"billing.manage",
	}

	clientPerms = []string{
		"self.profile.view",
		"self.profile.update",
		"self.booking.view",
		"self.booking.create",
		"self.booking.cancel",
		"self.invoice.view",
	}
	trainerPerms = []string{
		"trainer.schedule.view",
		"trainer.client.view",
		"trainer.session.create",
		"trainer.session.update",
		"trainer.availability.manage",
	}
)

type scopeRole struct {
	scope domain.Scope
	role  string
}

// rolePermissions is the static role expansion table. Every combination the
// token service can issue is listed here.
var rolePermissions = map[scopeRole][]string{
	{domain.ScopePlatform, RolePlatformViewer}:     platformView,
	{domain.ScopePlatform, RoleSupportAgent}:       concat(platformView, platformSupport),
	{domain.ScopePlatform, RoleSupportLead}:        concat(platformView, platformSupport, []string{PermImpersonationManage}),
	{domain.ScopePlatform, RoleAccountManager}:     concat(platformView, platformAccount),
	{domain.ScopePlatform, RolePlatformAdmin}:      concat(platformView, platformSupport, platformAccount, platformAdmin),
	{domain.ScopePlatform, RolePlatformSuperAdmin}: concat(platformView, platformSupport, platformAccount, platformAdmin, platformSuper),

	{domain.ScopeFacility, RoleStaff}:      concat(facilityView, facilityStaff),
	{domain.ScopeFacility, RoleClubAdmin}:  concat(facilityView, facilityStaff, facilityAdmin),
	{domain.ScopeFacility, RoleSuperAdmin}: concat(facilityView, facilityStaff, facilityAdmin, facilitySuper),

	{domain.ScopeClient, RoleMember}: clientPerms,

	{domain.ScopeTrainer, RoleTrainer}: trainerPerms,
}

// PermissionsFor expands role into its permission list for scope.
func PermissionsFor(scope domain.Scope, role string) ([]string, error) {
	perms, ok := rolePermissions[scopeRole{scope: scope, role: role}]
	if !ok {
		return nil, ErrInvalidInput.WithMessage("unknown role " + role + " for scope " + string(scope))
	}
	out := make([]string, len(perms))
	copy(out, perms)
	sort.Strings(out)
	return out, nil
}

// RolesFor lists the roles defined for scope, sorted.
func RolesFor(scope domain.Scope) []string {
	var roles []string
	for key := range rolePermissions {
		if key.scope == scope {
			roles = append(roles, key.role)
		}
	}
	sort.Strings(roles)
	return roles
}

// PermissionUniverse returns every permission any role of scope may receive.
func PermissionUniverse(scope domain.Scope) map[string]struct{} {
	var groups [][]string
	switch scope {
	case domain.ScopePlatform:
		groups = [][]string{platformView, platformSupport, platformAccount, platformAdmin, platformSuper}
	case domain.ScopeFacility:
		groups = [][]string{facilityView, facilityStaff, facilityAdmin, facilitySuper}
	case domain.ScopeClient:
		groups = [][]string{clientPerms}
	case domain.ScopeTrainer:
		groups = [][]string{trainerPerms}
	}
	universe := make(map[string]struct{})
	for _, group := range groups {
		for _, perm := range group {
			universe[perm] = struct{}{}
		}
	}
	return universe
}

// IsReadOnly reports whether perm carries the read-only marker.
func IsReadOnly(perm string) bool {
	return strings.HasSuffix(perm, ReadOnlySuffix)
}

func concat(groups ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range groups {
		for _, perm := range group {
			if _, ok := seen[perm]; ok {
				continue
			}
			seen[perm] = struct{}{}
			out = append(out, perm)
		}
	}
	return out
}
