package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/app"
	kafkainfra "github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/kafka"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository/memory"
)

var (
	chatDB     string
	chatLocale string
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the registration assistant in the terminal",
		Long: "Run the registration conversation locally against an in-memory session store and a SQLite farmer directory.\n" +
			"Type /quit to leave and /abandon to cancel the registration.",
		Args: cobra.NoArgs,
		RunE: runChat,
	}
	cmd.Flags().StringVar(&chatDB, "db", ":memory:", "SQLite farmer directory path")
	cmd.Flags().StringVar(&chatLocale, "locale", "", "Locale hint, as a browser would send in Accept-Language")
	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Identity.Backend = "sqlite"
	cfg.SQLite.Path = chatDB

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

	controller, err := app.NewController(cmd.Context(), cfg, app.ControllerDeps{
		Farmers:  dir.Repository,
		Sessions: memory.NewSessionStore(cfg.Sessions.TerminalRetention),
		Events:   kafkainfra.NewStubPublisher(log),
		Logger:   log,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	key := "cli-" + ulid.Make().String()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit":
			return nil
		case "/abandon":
			reply, err := controller.Abandon(cmd.Context(), key, domain.ChannelWeb)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, reply.Text)
			return nil
		}

		reply, err := controller.HandleTurn(cmd.Context(), domain.InboundMessage{
			SessionKey: key,
			Channel:    domain.ChannelWeb,
			Text:       text,
			LocaleHint: chatLocale,
		})
		if err != nil {
			fmt.Fprintln(out, controller.FailureText(text, chatLocale))
			fmt.Fprintf(cmd.ErrOrStderr(), "turn failed: %v\n", err)
			continue
		}
		fmt.Fprintln(out, reply.Text)
		if reply.Status.Terminal() {
			if reply.AccountID != "" {
				fmt.Fprintf(out, "account %s\n", reply.AccountID)
			}
			return nil
		}
	}
}
