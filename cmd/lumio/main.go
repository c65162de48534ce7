package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Lumio/common/spec/envelope"
	"github.com/bdobrica/Lumio/common/version"
	"github.com/bdobrica/Lumio/internal/lumio/app"
	"github.com/bdobrica/Lumio/internal/lumio/config"
	"github.com/bdobrica/Lumio/internal/lumio/observability"
)

var rootCmd = &cobra.Command{
	Use:           "lumio",
	Short:         "Lumio personal assistant chat bot",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd(), routeCmd(), sweepCmd(), versionCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads and validates the configuration and configures logging.
func setup() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	observability.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the configured chat transports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lumio, err := app.New(ctx, cfg, app.Options{})
			if err != nil {
				return fmt.Errorf("failed to initialize Lumio: %w", err)
			}
			defer lumio.Close()
			return lumio.Run(ctx)
		},
	}
}

func routeCmd() *cobra.Command {
	var (
		platform string
		userID   string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "route TEXT...",
		Short: "Route one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := envelope.ParsePlatform(platform)
			if err != nil {
				return err
			}
			cfg, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			lumio, err := app.New(ctx, cfg, app.Options{DryRun: dryRun})
			if err != nil {
				return fmt.Errorf("failed to initialize Lumio: %w", err)
			}
			defer lumio.Close()

			reply := lumio.Router().Route(ctx, envelope.InboundMessage{
				Text:     strings.Join(args, " "),
				Platform: p,
				UserID:   userID,
				ChatID:   userID,
			})
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().StringVarP(&platform, "platform", "p", string(envelope.PlatformTelegram), "Platform the message appears to come from")
	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "Sender and chat id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use in-memory calendar and ledger instead of Google")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deliver due reminders once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			lumio, err := app.New(ctx, cfg, app.Options{})
			if err != nil {
				return fmt.Errorf("failed to initialize Lumio: %w", err)
			}
			defer lumio.Close()

			n, err := lumio.Scheduler().RunOnce(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d reminder(s) sent\n", n)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}
