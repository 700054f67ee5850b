package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/config"
	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/events"
	"github.com/gymstack/facility-auth/internal/repository"
	"github.com/gymstack/facility-auth/internal/repository/memrepo"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) count(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// driftingAccounts serves accounts from the wrapped store with fields changed
// after login, the way an admin edit would.
type driftingAccounts struct {
	repository.AccountRepository
	mu       sync.Mutex
	role     string
	tenantID string
	missing  bool
}

func (d *driftingAccounts) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	d.mu.Lock()
	role, tenantID, missing := d.role, d.tenantID, d.missing
	d.mu.Unlock()
	if missing {
		return nil, repository.ErrNotFound
	}
	account, err := d.AccountRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != "" {
		account.Role = role
	}
	if tenantID != "" {
		account.TenantID = tenantID
	}
	return account, nil
}

func (d *driftingAccounts) set(fn func(*driftingAccounts)) {
	d.mu.Lock()
	fn(d)
	d.mu.Unlock()
}

// brokenRevokeFamilies is a family store whose Revoke always fails.
type brokenRevokeFamilies struct {
	*auth.MemoryFamilyStore
}

func (brokenRevokeFamilies) Revoke(context.Context, string) error {
	return errors.New("redis: connection refused")
}

type authFixture struct {
	svc         *AuthService
	accounts    *memrepo.Accounts
	drift       *driftingAccounts
	tokens      *auth.TokenManager
	revocations *auth.MemoryRevocationList
	recorded    *recorder
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	return newAuthFixtureWith(t, nil)
}

func newAuthFixtureWith(t *testing.T, families auth.FamilyStore) *authFixture {
	t.Helper()
	dispatcher := events.NewInMemoryDispatcher()
	rec := &recorder{}
	events.SubscribeAll(dispatcher, rec.handle)

	tokens := auth.NewTokenManager(auth.TokenManagerConfig{
		Secret:   "0123456789abcdef0123456789abcdef",
		Issuer:   "facility-auth-test",
		Families: families,
		OnReuse:  ReportRefreshReuse(dispatcher, nil),
	})
	accounts := memrepo.NewAccounts()
	f := &authFixture{
		accounts:    accounts,
		drift:       &driftingAccounts{AccountRepository: accounts},
		tokens:      tokens,
		revocations: auth.NewMemoryRevocationList(nil),
		recorded:    rec,
	}
	f.svc = NewAuthService(config.AuthConfig{BcryptCost: 4}, AuthDependencies{
		Accounts:    f.drift,
		Tokens:      tokens,
		Revocations: f.revocations,
		Events:      dispatcher,
	})
	return f
}

func (f *authFixture) seed(t *testing.T, in CreateAccountInput) *domain.Account {
	t.Helper()
	account, err := f.svc.CreateAccount(context.Background(), in)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func staffInput() CreateAccountInput {
	return CreateAccountInput{
		Scope:    domain.ScopeFacility,
		TenantID: "gym-1",
		Email:    "Desk@Gym.example",
		Name:     "Front Desk",
		Password: "correct-horse",
		Role:     auth.RoleStaff,
	}
}

func TestLoginIssuesTenantBoundPair(t *testing.T) {
	f := newAuthFixture(t)
	created := f.seed(t, staffInput())

	account, pair, err := f.svc.Login(context.Background(), LoginInput{
		Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "desk@gym.example", Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if account.ID != created.ID {
		t.Fatalf("expected account %s, got %s", created.ID, account.ID)
	}
	claims, err := f.tokens.VerifyAccess(pair.Access.Value)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.TenantID != "gym-1" || claims.Scope != domain.ScopeFacility || claims.Role != auth.RoleStaff {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if f.recorded.count(events.EventLoginSucceeded) != 1 {
		t.Fatalf("expected one login_succeeded event")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	f.seed(t, staffInput())
	disabled := staffInput()
	disabled.Email = "gone@gym.example"
	acct := f.seed(t, disabled)
	if err := f.accounts.SetActive(context.Background(), acct.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	cases := map[string]LoginInput{
		"wrong password": {Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "desk@gym.example", Password: "wrong-horse"},
		"unknown email":  {Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "nobody@gym.example", Password: "correct-horse"},
		"other tenant":   {Scope: domain.ScopeFacility, TenantID: "gym-2", Email: "desk@gym.example", Password: "correct-horse"},
		"inactive":       {Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "gone@gym.example", Password: "correct-horse"},
	}
	var messages []string
	for name, in := range cases {
		_, _, err := f.svc.Login(context.Background(), in)
		if !errors.Is(err, auth.ErrInvalidCredential) {
			t.Fatalf("%s: expected invalid credential, got %v", name, err)
		}
		messages = append(messages, err.Error())
	}
	for _, msg := range messages[1:] {
		if msg != messages[0] {
			t.Fatalf("login failures leak detail: %q vs %q", msg, messages[0])
		}
	}
	if got := f.recorded.count(events.EventLoginFailed); got != len(cases) {
		t.Fatalf("expected %d login_failed events, got %d", len(cases), got)
	}
}

func TestLoginRejectsTenantOnPlatformScope(t *testing.T) {
	f := newAuthFixture(t)
	_, _, err := f.svc.Login(context.Background(), LoginInput{
		Scope: domain.ScopePlatform, TenantID: "gym-1", Email: "ops@platform.example", Password: "whatever-pass",
	})
	if !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	f := newAuthFixture(t)
	f.seed(t, staffInput())
	ctx := context.Background()
	_, pair, err := f.svc.Login(ctx, LoginInput{
		Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "desk@gym.example", Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	next, err := f.svc.Refresh(ctx, pair.Refresh.Value)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.FamilyID != pair.FamilyID {
		t.Fatalf("rotation changed family")
	}
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Value); !errors.Is(err, auth.ErrRevokedCredential) {
		t.Fatalf("expected replay to be revoked, got %v", err)
	}
	if f.recorded.count(events.EventRefreshReuseDetected) != 1 {
		t.Fatalf("expected reuse event")
	}
	if _, err := f.svc.Refresh(ctx, next.Refresh.Value); !errors.Is(err, auth.ErrRevokedCredential) {
		t.Fatalf("expected family revoked after reuse, got %v", err)
	}
}

func TestRefreshForDisabledAccountRevokesFamily(t *testing.T) {
	f := newAuthFixture(t)
	acct := f.seed(t, staffInput())
	ctx := context.Background()
	_, pair, err := f.svc.Login(ctx, LoginInput{
		Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "desk@gym.example", Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := f.accounts.SetActive(ctx, acct.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Value); !errors.Is(err, auth.ErrRevokedCredential) {
		t.Fatalf("expected revoked, got %v", err)
	}
	if err := f.accounts.SetActive(ctx, acct.ID, true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Value); !errors.Is(err, auth.ErrRevokedCredential) {
		t.Fatalf("family should stay revoked, got %v", err)
	}
}

func clubAdminInput() CreateAccountInput {
	in := staffInput()
	in.Email = "owner@gym.example"
	in.Role = auth.RoleClubAdmin
	return in
}

func (f *authFixture) loginOwner(t *testing.T) *auth.TokenPair {
	t.Helper()
	_, pair, err := f.svc.Login(context.Background(), LoginInput{
		Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "owner@gym.example", Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return pair
}

func hasPermission(perms []string, want string) bool {
	for _, perm := range perms {
		if perm == want {
			return true
		}
	}
	return false
}

func TestRefreshAppliesCurrentRole(t *testing.T) {
	f := newAuthFixture(t)
	f.seed(t, clubAdminInput())
	ctx := context.Background()
	pair := f.loginOwner(t)
	if !hasPermission(pair.Access.Claims.Permissions, auth.PermAPIKeyManage) {
		t.Fatalf("club admin should start with %s", auth.PermAPIKeyManage)
	}

	f.drift.set(func(d *driftingAccounts) { d.role = auth.RoleStaff })
	next, err := f.svc.Refresh(ctx, pair.Refresh.Value)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := f.tokens.VerifyAccess(next.Access.Value)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.Role != auth.RoleStaff || hasPermission(claims.Permissions, auth.PermAPIKeyManage) {
		t.Fatalf("demoted account kept old grants: role=%s perms=%v", claims.Role, claims.Permissions)
	}
	if next.Refresh.Claims.Role != auth.RoleStaff {
		t.Fatalf("refresh token kept role %s", next.Refresh.Claims.Role)
	}

	f.drift.set(func(d *driftingAccounts) { d.role = "" })
	again, err := f.svc.Refresh(ctx, next.Refresh.Value)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if again.Access.Claims.Role != auth.RoleClubAdmin {
		t.Fatalf("restored role not applied, got %s", again.Access.Claims.Role)
	}
}

func TestRefreshRevokesFamilyWhenTenantChanges(t *testing.T) {
	f := newAuthFixture(t)
	f.seed(t, clubAdminInput())
	ctx := context.Background()
	pair := f.loginOwner(t)

	f.drift.set(func(d *driftingAccounts) { d.tenantID = "gym-2" })
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Value); !errors.Is(err, auth.ErrRevokedCredential) {
		t.Fatalf("expected revoked after tenant change, got %v", err)
	}
	f.drift.set(func(d *driftingAccounts) { d.tenantID = "" })
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Value); !errors.Is(err, auth.ErrRevokedCredential) {
		t.Fatalf("family should stay revoked, got %v", err)
	}
}

func TestRefreshForDeletedAccountReportsStoreFailure(t *testing.T) {
	f := newAuthFixtureWith(t, brokenRevokeFamilies{auth.NewMemoryFamilyStore(nil)})
	f.seed(t, clubAdminInput())
	pair := f.loginOwner(t)

	f.drift.set(func(d *driftingAccounts) { d.missing = true })
	_, err := f.svc.Refresh(context.Background(), pair.Refresh.Value)
	if !errors.Is(err, auth.ErrCredentialStoreUnavailable) {
		t.Fatalf("expected store failure to surface, got %v", err)
	}
}

func TestRefreshForDeletedAccountRevokesFamily(t *testing.T) {
	f := newAuthFixture(t)
	f.seed(t, clubAdminInput())
	ctx := context.Background()
	pair := f.loginOwner(t)

	f.drift.set(func(d *driftingAccounts) { d.missing = true })
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Value); !errors.Is(err, auth.ErrRevokedCredential) {
		t.Fatalf("expected revoked, got %v", err)
	}
	f.drift.set(func(d *driftingAccounts) { d.missing = false })
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Value); !errors.Is(err, auth.ErrRevokedCredential) {
		t.Fatalf("family should stay revoked, got %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	f.seed(t, staffInput())
	_, pair, err := f.svc.Login(context.Background(), LoginInput{
		Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "desk@gym.example", Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), pair.Access.Value); !errors.Is(err, auth.ErrMalformedCredential) {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestLogoutRevokesAccessAndFamily(t *testing.T) {
	f := newAuthFixture(t)
	f.seed(t, staffInput())
	ctx := context.Background()
	_, pair, err := f.svc.Login(ctx, LoginInput{
		Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "desk@gym.example", Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := f.tokens.VerifyAccess(pair.Access.Value)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	principal := claims.Principal()

	if err := f.svc.Logout(ctx, principal, pair.Refresh.Value); err != nil {
		t.Fatalf("logout: %v", err)
	}
	revoked, err := f.revocations.IsRevoked(ctx, principal.TokenID)
	if err != nil || !revoked {
		t.Fatalf("expected access jti revoked, got %v %v", revoked, err)
	}
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Value); !errors.Is(err, auth.ErrRevokedCredential) {
		t.Fatalf("expected refresh revoked after logout, got %v", err)
	}
	if f.recorded.count(events.EventLogout) != 1 {
		t.Fatalf("expected logout event")
	}
}

func TestLogoutRejectsForeignRefreshToken(t *testing.T) {
	f := newAuthFixture(t)
	f.seed(t, staffInput())
	other := staffInput()
	other.Email = "coach@gym.example"
	f.seed(t, other)
	ctx := context.Background()

	_, mine, err := f.svc.Login(ctx, LoginInput{Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "desk@gym.example", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_, theirs, err := f.svc.Login(ctx, LoginInput{Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "coach@gym.example", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, _ := f.tokens.VerifyAccess(mine.Access.Value)
	if err := f.svc.Logout(ctx, claims.Principal(), theirs.Refresh.Value); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, theirs.Refresh.Value); err != nil {
		t.Fatalf("foreign family must stay usable: %v", err)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	f := newAuthFixture(t)
	cases := map[string]CreateAccountInput{
		"bad email":         {Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "nope", Password: "long-enough", Role: auth.RoleStaff},
		"short password":    {Scope: domain.ScopeFacility, TenantID: "gym-1", Email: "a@b.c", Password: "short", Role: auth.RoleStaff},
		"role of scope":     {Scope: domain.ScopeClient, TenantID: "gym-1", Email: "a@b.c", Password: "long-enough", Role: auth.RoleStaff},
		"platform tenant":   {Scope: domain.ScopePlatform, TenantID: "gym-1", Email: "a@b.c", Password: "long-enough", Role: auth.RolePlatformAdmin},
		"facility untenant": {Scope: domain.ScopeFacility, Email: "a@b.c", Password: "long-enough", Role: auth.RoleStaff},
	}
	for name, in := range cases {
		if _, err := f.svc.CreateAccount(context.Background(), in); !errors.Is(err, auth.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}

	f.seed(t, staffInput())
	if _, err := f.svc.CreateAccount(context.Background(), staffInput()); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected duplicate to be rejected, got %v", err)
	}
}
