package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/app"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/usecase"
)

var sweepIdle time.Duration

func init() {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire idle registration sessions once",
		Long:  "Run a single idle-session sweep against the configured session store. Sessions whose lease is held by an in-flight turn are skipped.",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	cmd.Flags().DurationVar(&sweepIdle, "idle", 0, "Idle window (default: registration.idle_window)")
	RootCmd.AddCommand(cmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Sessions.Backend == "memory" {
		return fmt.Errorf("sessions.backend is memory; there is no shared store to sweep")
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	backends, err := app.OpenBackends(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()

	idle := cfg.Registration.IdleWindow
	if sweepIdle > 0 {
		idle = sweepIdle
	}
	events, producer := app.OpenEventPublisher(cfg, log)
	if producer != nil {
		defer func() { _ = producer.Close() }()
	}

	// The server's in-process locks are invisible here; the shared lease is what guards a turn.
	sweeper := usecase.NewSessionSweeper(backends.Sessions, nil, idle, time.Minute, events, nil, log).
		WithLeases(backends.Leases)
	n, err := sweeper.SweepOnce(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "expired %d session(s) idle for %s\n", n, idle)
	return nil
}
