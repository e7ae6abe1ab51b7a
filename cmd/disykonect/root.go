package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/disykonect/internal/config"
	"github.com/jmylchreest/disykonect/internal/daemon"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global state
var (
	globalOpts struct {
		verbose int
	}
	logger *slog.Logger
)

// rootCmd runs the daemon when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "disykonect",
	Short: "Keep a security key and the network apart",
	Long: `disykonect watches for a USB security key and for network connectivity
and raises an alert whenever both are present at the same time.

At startup both are polled; while both are present the alert is shown and
disykonect waits for one of them to go away before it starts monitoring.

Optional settings are read from ~/.config/disykonect/disykonect.toml and
reloaded when the file changes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()
		return nil
	},
	RunE: runDaemon,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("disykonect failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&globalOpts.verbose, "verbose", "v",
		"Increase log verbosity (-v warn, -vv info, -vvv debug)")
}

// logLevel maps the verbosity count to a slog level.
func logLevel(verbose int) slog.Level {
	switch {
	case verbose <= 0:
		return slog.LevelError
	case verbose == 1:
		return slog.LevelWarn
	case verbose == 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// setupLogger configures the global slog logger.
func setupLogger() {
	opts := &slog.HandlerOptions{
		Level: logLevel(globalOpts.verbose),
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logger.Info("starting disykonect", "version", version)

	configPath, err := config.DaemonConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	cfg, err := config.LoadDaemonConfigFrom(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sup, err := daemon.Build(cfg, configPath, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if err := sup.Run(ctx); err != nil {
		return err
	}
	logger.Info("disykonect stopped")
	return nil
}
