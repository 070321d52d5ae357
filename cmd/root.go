// Package cmd defines the bespoke command line: "run" drives a test run
// from the orchestrator host, "agent" serves the on-SUT helper API.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fancylads/bespoke/internal/config"
)

const envPrefix = "BESPOKE"

func NewRootCommand(cfg *config.Configuration) *cobra.Command {
	root := &cobra.Command{
		Use:           "bespoke",
		Short:         "bespoke lab test orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(NewRunCommand(cfg))
	root.AddCommand(NewAgentCommand(cfg))
	return root
}

func setupEnvBinding() {
	viper.Reset()
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

func setupLogging(serverMode string) error {
	logCfg := zap.NewDevelopmentConfig()
	if serverMode == "prod" {
		logCfg = zap.NewProductionConfig()
	}

	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build the logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return nil
}
