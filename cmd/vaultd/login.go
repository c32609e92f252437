package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vaultengine/vaultengine/internal/auth"
	"github.com/vaultengine/vaultengine/internal/config"
	"github.com/vaultengine/vaultengine/internal/tokenstore"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the vault host",
		Long: `Authenticate with the vault host using the device code flow.

Prints a verification URL and user code; once approved in a browser, the
refresh token is persisted to the local token store for use by every other
command.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Remove the persisted session",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runLogout,
	}
}

func loginConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	logger := buildLogger(nil)

	cli := config.CLIOverrides{ConfigPath: flagConfigPath}
	if cmd.Flags().Changed("server-url") {
		cli.ServerURL = flagServerURL
	}

	if cmd.Flags().Changed("token-store") {
		cli.TokenStorePath = flagTokenStorePath
	}

	env := config.ReadEnvOverrides()

	cfg, err := config.Resolve(env, cli, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, buildLogger(cfg), nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loginConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Auth.ServerURL == "" {
		return fmt.Errorf("server URL is required: pass --server-url or set auth.server_url in the config file")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := tokenstore.Open(ctx, cfg.Auth.TokenStorePath, logger)
	if err != nil {
		return fmt.Errorf("opening token store: %w", err)
	}
	defer store.Close()

	_, err = auth.Login(ctx, store, cfg.Auth.ServerURL, cfg.Auth.ClientID, func(d auth.DeviceAuth) {
		fmt.Printf("To sign in, open %s and enter code: %s\n", d.VerificationURI, d.UserCode)
	}, logger)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	fmt.Println("Login successful.")

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loginConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := tokenstore.Open(ctx, cfg.Auth.TokenStorePath, logger)
	if err != nil {
		return fmt.Errorf("opening token store: %w", err)
	}
	defer store.Close()

	if err := auth.Logout(ctx, store, logger); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	fmt.Println("Logged out.")

	return nil
}
