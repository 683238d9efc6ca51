// Package cli implements the onboardctl operator commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/config"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/logger"
)

var verbose bool

// loadConfig is replaced in tests.
var loadConfig = config.Load

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:          "onboardctl",
	Short:        "Operate the farmer onboarding service",
	Long:         "Apply the farmer directory schema, expire idle registration sessions and try the registration conversation locally.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level to stderr")
}

func newLogger(cfg *config.AppConfig) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	log, err := logger.New(logger.Options{Env: cfg.App.Env, Level: "debug", Service: cfg.App.Name})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}
