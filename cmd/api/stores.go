package main

import (
	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/persistence"
	"github.com/gymstack/facility-auth/internal/ratelimit"
	"github.com/gymstack/facility-auth/internal/repository"
	"github.com/gymstack/facility-auth/internal/repository/memrepo"
)

type stores struct {
	accounts    repository.AccountRepository
	apiKeys     repository.APIKeyRepository
	sessions    repository.ImpersonationRepository
	families    auth.FamilyStore
	revocations auth.RevocationList
	limiter     ratelimit.Limiter
}

// buildStores picks Postgres and Redis backed stores when those are configured
// and falls back to process memory otherwise.
func buildStores(pg *persistence.Postgres, rdb *persistence.Redis) stores {
	var st stores
	if pg.Enabled() {
		st.accounts = repository.NewAccountRepository(pg.Pool)
		st.apiKeys = repository.NewAPIKeyRepository(pg.Pool)
		st.sessions = repository.NewImpersonationRepository(pg.Pool)
	} else {
		st.accounts = memrepo.NewAccounts()
		st.apiKeys = memrepo.NewAPIKeys()
		st.sessions = memrepo.NewImpersonation()
	}

	if rdb.Enabled() {
		st.families = repository.NewRedisFamilyStore(rdb.Client)
		st.revocations = repository.NewRedisRevocationList(rdb.Client, nil)
		st.limiter = ratelimit.NewRedisLimiter(rdb.Client, "ratelimit:", nil)
	} else {
		st.families = auth.NewMemoryFamilyStore(nil)
		st.revocations = auth.NewMemoryRevocationList(nil)
		st.limiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{})
	}
	return st
}
