package cmd

import (
	"context"
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fancylads/bespoke/internal/config"
	"github.com/fancylads/bespoke/internal/models"
	"github.com/fancylads/bespoke/internal/services"
	"github.com/fancylads/bespoke/internal/store"
	"github.com/fancylads/bespoke/internal/store/migrations"
)

// NewRunCommand builds the orchestrator entry point. Every flag is also
// settable through a BESPOKE_ environment variable; flags win.
func NewRunCommand(cfg *config.Configuration) *cobra.Command {
	var globalConfigPath string

	cmd := &cobra.Command{
		Use:   "run <test-run-file>",
		Short: "Execute a test run against the lab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupEnvBinding()
			cobraflags.PresetRequiredFlags(envPrefix, make(map[*pflag.Flag]bool), cmd)

			if err := validateConfiguration(cfg); err != nil {
				return err
			}
			if err := setupLogging(cfg.Agent.ServerMode); err != nil {
				return err
			}
			return executeRun(cmd.Context(), cfg, globalConfigPath, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&globalConfigPath, "global-config", "configs/global.yaml",
		"path to the global lab configuration file")
	flags.IntVar(&cfg.Lab.BootWaitSeconds, "boot-wait-seconds", cfg.Lab.BootWaitSeconds,
		"seconds to wait after powering on a machine before probing its agent")
	flags.IntVar(&cfg.Lab.NumWorkers, "num-workers", cfg.Lab.NumWorkers,
		"concurrent tool staging transfers")
	flags.IntVar(&cfg.Agent.HTTPPort, "agent-http-port", cfg.Agent.HTTPPort,
		"port bespoke agents listen on")
	flags.StringVar(&cfg.Agent.ServerMode, "server-mode", cfg.Agent.ServerMode,
		"dev or prod")
	flags.StringVar(&cfg.DB.Path, "db-path", cfg.DB.Path,
		"DuckDB file recording run outcomes")
	flags.BoolVar(&cfg.Auth.Enabled, "authentication-enabled", cfg.Auth.Enabled,
		"send signed bearer tokens to agents")
	flags.StringVar(&cfg.Auth.JWTSecretFilePath, "authentication-jwt-filepath", cfg.Auth.JWTSecretFilePath,
		"path to the shared agent token secret")

	return cmd
}

func executeRun(ctx context.Context, cfg *config.Configuration, globalPath, runPath string) error {
	db, err := store.NewDB(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to open the results database: %w", err)
	}
	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to migrate the results database: %w", err)
	}

	st := store.NewStore(db)
	defer func() { _ = st.Close() }()

	svc := services.NewRunService(afero.NewOsFs(), st, cfg)
	status, err := svc.Run(ctx, globalPath, runPath)
	if err != nil {
		return err
	}
	if status != models.StatusPass {
		return fmt.Errorf("the test run finished with status %s", status)
	}
	return nil
}

func validateConfiguration(cfg *config.Configuration) error {
	if cfg.Agent.HTTPPort < 1 || cfg.Agent.HTTPPort > 65535 {
		return fmt.Errorf("invalid agent-http-port: %d", cfg.Agent.HTTPPort)
	}
	if cfg.Lab.NumWorkers < 1 {
		return fmt.Errorf("invalid num-workers: %d", cfg.Lab.NumWorkers)
	}
	if cfg.Lab.BootWaitSeconds < 0 {
		return fmt.Errorf("invalid boot-wait-seconds: %d", cfg.Lab.BootWaitSeconds)
	}
	if cfg.Agent.ServerMode != "dev" && cfg.Agent.ServerMode != "prod" {
		return fmt.Errorf("invalid server mode: %s", cfg.Agent.ServerMode)
	}
	if cfg.Auth.Enabled && cfg.Auth.JWTSecretFilePath == "" {
		return fmt.Errorf("authentication-jwt-filepath must be set when authentication is enabled")
	}
	return nil
}
