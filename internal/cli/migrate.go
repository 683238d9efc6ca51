package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/app"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the farmer directory schema",
		Long:  "Apply the farmer directory schema to the configured identity backend (postgres or sqlite). Safe to run repeatedly.",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
	RootCmd.AddCommand(cmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	dir, err := app.OpenDirectory(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer dir.Close()

	applied, err := dir.Migrate(cmd.Context())
	if err != nil {
		return fmt.Errorf("migrate %s: %w", dir.Backend, err)
	}
	for _, name := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", dir.Backend)
	return nil
}
