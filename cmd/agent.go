package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/fancylads/bespoke/internal/config"
	"github.com/fancylads/bespoke/internal/handlers"
	"github.com/fancylads/bespoke/internal/server"
)

const shutdownGrace = 10 * time.Second

// NewAgentCommand builds the on-SUT helper process: a small HTTP API the
// orchestrator uses to move files and run test commands.
func NewAgentCommand(cfg *config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Serve the bespoke agent API on a system under test",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupEnvBinding()
			cobraflags.PresetRequiredFlags(envPrefix, make(map[*pflag.Flag]bool), cmd)

			if err := validateConfiguration(cfg); err != nil {
				return err
			}
			if err := setupLogging(cfg.Agent.ServerMode); err != nil {
				return err
			}
			return serveAgent(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.Agent.HTTPPort, "agent-http-port", cfg.Agent.HTTPPort,
		"port to listen on")
	flags.StringVar(&cfg.Agent.ServerMode, "server-mode", cfg.Agent.ServerMode,
		"dev or prod")
	flags.StringVar(&cfg.Agent.WorkFolder, "work-folder", cfg.Agent.WorkFolder,
		"restrict filesystem operations to this directory, empty means unrestricted")
	flags.BoolVar(&cfg.Auth.Enabled, "authentication-enabled", cfg.Auth.Enabled,
		"require signed bearer tokens")
	flags.StringVar(&cfg.Auth.JWTSecretFilePath, "authentication-jwt-filepath", cfg.Auth.JWTSecretFilePath,
		"path to the shared token secret")

	return cmd
}

func serveAgent(ctx context.Context, cfg *config.Configuration) error {
	log := zap.S().Named("agent")

	hostname, err := os.Hostname()
	if err != nil {
		return err
	}

	handler := handlers.New(afero.NewOsFs(), hostname, cfg.Agent.WorkFolder)
	srv, err := server.NewServer(cfg, handler.RegisterRoutes)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infow("agent listening", "port", cfg.Agent.HTTPPort, "work_folder", cfg.Agent.WorkFolder)
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Infow("agent shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	srv.Stop(shutdownCtx)
	return nil
}
