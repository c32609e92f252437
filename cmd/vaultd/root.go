package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vaultengine/vaultengine/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in setupRootCmd().
var (
	flagConfigPath     string
	flagServerURL      string
	flagTokenStorePath string
	flagJSON           bool
	flagVerbose        bool
	flagDebug          bool
	flagQuiet          bool
)

// skipConfigAnnotation marks commands that handle config loading themselves
// (login/logout, which may run before a server URL is known).
const skipConfigAnnotation = "skipConfig"

// CLIContext bundles resolved config and logger, built once in
// PersistentPreRunE and threaded through RunE handlers via the command
// context.
type CLIContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics — a programmer error,
// since the command tree guarantees PersistentPreRunE populates it before
// RunE runs for any command without skipConfigAnnotation.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — command is missing skipConfigAnnotation or PersistentPreRunE did not run")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vaultd",
		Short:         "End-to-end encrypted vault engine",
		Long:          "A client-side driver for an end-to-end encrypted cloud file store: login, status, unlock, and a foreground serve loop.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServerURL, "server-url", "", "vault host base URL")
	cmd.PersistentFlags().StringVar(&flagTokenStorePath, "token-store", "", "path to the refresh-token store database")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging (HTTP requests, config resolution)")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newUnlockCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores the result in the command's context.
func loadConfig(cmd *cobra.Command) error {
	logger := buildLogger(nil)

	cli := config.CLIOverrides{ConfigPath: flagConfigPath}
	if cmd.Flags().Changed("server-url") {
		cli.ServerURL = flagServerURL
	}

	if cmd.Flags().Changed("token-store") {
		cli.TokenStorePath = flagTokenStorePath
	}

	env := config.ReadEnvOverrides()

	logger.Debug("resolving config",
		slog.String("config_path", cli.ConfigPath),
		slog.String("cli_server_url", cli.ServerURL),
		slog.String("env_config", env.ConfigPath),
		slog.String("env_server_url", env.ServerURL),
	)

	cfg, err := config.Resolve(env, cli, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	finalLogger := buildLogger(cfg)
	cc := &CLIContext{Cfg: cfg, Logger: finalLogger}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap (no config-file log level).
// Config-file log level is the baseline; --verbose/--debug/--quiet override
// it, since CLI flags always win (Cobra enforces they're mutually exclusive).
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
