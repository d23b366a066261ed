package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configFile string
	profile    string
	dbType     string
	dbDSN      string
}

// env is what every subcommand works with.
type env struct {
	cfg      *config.Config
	repos    repomanager.RepositoryManager
	sessions *services.SessionService
}

func (e *env) Close() error { return e.repos.Close() }

// NewRootCmd creates the authctl root command.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "AuthKeeper administration",
		Long:          `authctl manages AuthKeeper accounts and storage using the server configuration.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configFile, "config", "c", "", "config file path")
	pf.StringVar(&g.profile, "profile", "", "configuration profile (development, testing, production)")
	pf.StringVar(&g.dbType, "db-type", "", "database backend, overrides the configuration")
	pf.StringVar(&g.dbDSN, "db-dsn", "", "database DSN or file path, overrides the configuration")

	cmd.AddCommand(newSignupCmd(g))
	cmd.AddCommand(newForceLogoutCmd(g))
	cmd.AddCommand(newShowCmd(g))
	cmd.AddCommand(newMigrateCmd(g))

	return cmd
}

// args turns the global flags into the server's flag syntax so config.Load
// applies them with the usual precedence.
func (g *globalFlags) args() []string {
	var args []string
	if g.configFile != "" {
		args = append(args, "-c", g.configFile)
	}
	if g.profile != "" {
		args = append(args, "-profile", g.profile)
	}
	if g.dbType != "" {
		args = append(args, "-b", g.dbType)
	}
	if g.dbDSN != "" {
		args = append(args, "-d", g.dbDSN)
	}
	return args
}

func (g *globalFlags) open(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg, err := config.Load(g.args())
	if err != nil {
		return nil, err
	}

	logger := logging.New(stderr, "text", "warn")

	repos, err := repomanager.Open(ctx, repomanager.Options{Type: cfg.DatabaseType, DSN: cfg.DatabaseDSN}, logger)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService([]byte(cfg.SecretKey), cfg.TokenValidityDuration, repos.Accounts())
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	sessions, err := services.NewSessionService(repos, auth.NewArgon2idHasher(auth.DefaultArgon2Params), tokens, logger)
	if err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("session service init error: %w", err)
	}

	return &env{cfg: cfg, repos: repos, sessions: sessions}, nil
}
