package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gymstack/facility-auth/internal/apikey"
	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/config"
	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/impersonation"
	"github.com/gymstack/facility-auth/internal/observability"
	"github.com/gymstack/facility-auth/internal/persistence"
	"github.com/gymstack/facility-auth/internal/repository"
	"github.com/gymstack/facility-auth/internal/service"
)

// env holds what every subcommand needs: config, a logger and a database.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	pg     *persistence.Postgres
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, errors.New("POSTGRES_DSN is required for authctl")
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &env{cfg: cfg, logger: logger, pg: pg}, nil
}

func (e *env) close() {
	e.pg.Close()
	_ = e.logger.Sync()
}

// withEnv adapts a subcommand body to cobra, opening and closing the environment.
func withEnv(run func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()
		return run(ctx, e, cmd, args)
	}
}

var rootCmd = &cobra.Command{
	Use:           "authctl",
	Short:         "Operator tooling for the facility auth service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(migrateCmd(), createAccountCmd(), apiKeyCmd(), impersonationCmd())
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
			if err := persistence.RunMigrations(ctx, e.pg.Pool, e.logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		}),
	}
}

func createAccountCmd() *cobra.Command {
	var in service.CreateAccountInput
	var scope string
	cmd := &cobra.Command{
		Use:   "create-account",
		Short: "Create a login-capable account",
		Example: "  authctl create-account --scope platform --email ops@example.com --role PLATFORM_SUPER_ADMIN\n" +
			"  authctl create-account --scope facility --tenant gym-1 --email owner@gym.example --role SUPER_ADMIN",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
			in.Scope = domain.Scope(strings.ToLower(scope))
			if in.Password == "" {
				in.Password = os.Getenv("AUTHCTL_PASSWORD")
			}
			svc := service.NewAuthService(e.cfg.Auth, service.AuthDependencies{
				Accounts: repository.NewAccountRepository(e.pg.Pool),
				Logger:   e.logger,
			})
			account, err := svc.CreateAccount(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s account %s (%s)\n", account.Scope, account.ID, account.Email)
			return nil
		}),
	}
	cmd.Flags().StringVar(&scope, "scope", string(domain.ScopeFacility), "account scope: platform, facility, client or trainer")
	cmd.Flags().StringVar(&in.TenantID, "tenant", "", "tenant id (required unless scope is platform)")
	cmd.Flags().StringVar(&in.Email, "email", "", "login email")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Role, "role", "", "role within the scope")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (defaults to $AUTHCTL_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	root := &cobra.Command{Use: "apikey", Short: "Manage tenant API keys"}

	var in apikey.CreateInput
	var days int
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a key; the plaintext is printed once",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
			if days > 0 {
				in.ExpiresInDays = &days
			}
			authority := apikey.NewAuthority(repository.NewAPIKeyRepository(e.pg.Pool), e.logger, apikey.Config{
				DefaultRateLimit: e.cfg.APIKey.DefaultRateLimit,
			})
			key, plaintext, err := authority.Create(ctx, in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:     %s\n", key.ID)
			fmt.Fprintf(out, "tenant: %s\n", key.TenantID)
			fmt.Fprintf(out, "key:    %s\n", plaintext)
			return nil
		}),
	}
	create.Flags().StringVar(&in.TenantID, "tenant", "", "owning tenant id")
	create.Flags().StringVar(&in.Name, "name", "", "key label")
	create.Flags().StringSliceVar(&in.Permissions, "perm", nil, "granted permission (repeatable)")
	create.Flags().IntVar(&in.RateLimit, "rate-limit", 0, "requests per window (0 uses the default)")
	create.Flags().IntVar(&days, "expires-in-days", 0, "expiry in days (0 never expires)")
	_ = create.MarkFlagRequired("tenant")
	_ = create.MarkFlagRequired("name")

	var tenantID string
	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke a key",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			authority := apikey.NewAuthority(repository.NewAPIKeyRepository(e.pg.Pool), e.logger, apikey.Config{})
			if err := authority.Revoke(ctx, tenantID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		}),
	}
	revoke.Flags().StringVar(&tenantID, "tenant", "", "owning tenant id")
	_ = revoke.MarkFlagRequired("tenant")

	root.AddCommand(create, revoke)
	return root
}

func impersonationCmd() *cobra.Command {
	root := &cobra.Command{Use: "impersonation", Short: "Inspect impersonation sessions"}

	newManager := func(e *env) *impersonation.Manager {
		return impersonation.NewManager(impersonation.Config{
			Sessions: repository.NewImpersonationRepository(e.pg.Pool),
			Accounts: repository.NewAccountRepository(e.pg.Pool),
			Tokens:   auth.NewTokenManager(auth.TokenManagerConfig{Secret: e.cfg.Auth.JWTSecret, Issuer: e.cfg.Auth.Issuer}),
			Logger:   e.logger,
			TTL:      e.cfg.Auth.ImpersonationTTL(),
		})
	}

	verify := &cobra.Command{
		Use:   "verify <session-id>",
		Short: "Recompute the action log hash chain",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			report, err := newManager(e).VerifyActionLog(ctx, args[0])
			if err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("session %s: chain broken at action %d of %d", report.SessionID, report.BrokenAt, report.Actions)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d actions, chain intact\n", report.SessionID, report.Actions)
			return nil
		}),
	}

	var endedBy string
	forceEnd := &cobra.Command{
		Use:   "force-end <session-id>",
		Short: "Terminate an open session",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			session, err := newManager(e).ForceEnd(ctx, args[0], endedBy)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s is now %s\n", session.ID, session.Status)
			return nil
		}),
	}
	forceEnd.Flags().StringVar(&endedBy, "by", "authctl", "operator recorded as ending the session")

	list := &cobra.Command{
		Use:   "active",
		Short: "List open sessions",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
			sessions, err := newManager(e).ListActive(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range sessions {
				fmt.Fprintf(out, "%s\t%s -> %s@%s\texpires %s\n", s.ID, s.ImpersonatorID, s.TargetUserID, s.TargetTenantID, s.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		}),
	}

	root.AddCommand(verify, forceEnd, list)
	return root
}
