package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultengine/vaultengine/internal/config"
)

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	expected := []string{"login", "logout", "status", "unlock", "serve", "config"}
	for _, name := range expected {
		found := false

		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true

				break
			}
		}

		assert.True(t, found, "expected subcommand %q not found", name)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "server-url", "token-store", "json", "verbose", "debug", "quiet"} {
		flag := cmd.PersistentFlags().Lookup(name)
		assert.NotNil(t, flag, "expected persistent flag %q not found", name)
	}
}

func TestNewRootCmd_MutualExclusivity(t *testing.T) {
	pairs := [][]string{
		{"--verbose", "--debug"},
		{"--verbose", "--quiet"},
		{"--debug", "--quiet"},
	}

	for _, flags := range pairs {
		t.Run(flags[0]+"_"+flags[1], func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(append(flags, "login"))

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "none of the others can be")
		})
	}
}

func TestNewRootCmd_LoginLogoutSkipConfig(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"login", "logout"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)

		assert.Equal(t, "true", sub.Annotations[skipConfigAnnotation],
			"command %q should have skipConfig annotation", name)
	}

	for _, name := range []string{"status", "unlock", "serve"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)

		assert.Empty(t, sub.Annotations[skipConfigAnnotation],
			"command %q should NOT have skipConfig annotation", name)
	}
}

func TestBuildLogger_Default(t *testing.T) {
	resetFlags(t)

	logger := buildLogger(nil)

	assert.True(t, logger.Enabled(context.Background(), 4)) // slog.LevelWarn
	assert.False(t, logger.Enabled(context.Background(), 0)) // slog.LevelInfo
}

func TestBuildLogger_Verbose(t *testing.T) {
	resetFlags(t)
	flagVerbose = true

	logger := buildLogger(nil)

	assert.True(t, logger.Enabled(context.Background(), 0)) // Info
}

func TestBuildLogger_ConfigDebugOverriddenByQuiet(t *testing.T) {
	resetFlags(t)
	flagQuiet = true

	cfg := &config.Config{Logging: config.LoggingConfig{LogLevel: "debug"}}
	logger := buildLogger(cfg)

	assert.True(t, logger.Enabled(context.Background(), 8))  // Error
	assert.False(t, logger.Enabled(context.Background(), 0)) // Info
}

func TestCliContextFrom_NilContext(t *testing.T) {
	assert.Nil(t, cliContextFrom(context.Background()))
}

func TestMustCLIContext_Panics(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

func TestLoadConfig_PopulatesContext(t *testing.T) {
	resetFlags(t)

	tmpDir := t.TempDir()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", tmpDir + "/nonexistent.toml", "--server-url", "https://vault.example.com", "status"})

	// status will fail for lack of a logged-in session, but PersistentPreRunE
	// must still have resolved and stashed the config before that happens.
	_ = cmd.Execute()

	sub, _, err := cmd.Find([]string{"status"})
	require.NoError(t, err)

	cc := cliContextFrom(sub.Context())
	require.NotNil(t, cc)
	assert.Equal(t, "https://vault.example.com", cc.Cfg.Auth.ServerURL)
}

// resetFlags clears the package-level persistent flag variables between
// tests, since cobra binds them once at package init time and leaves
// whatever a prior test set.
func resetFlags(t *testing.T) {
	t.Helper()

	flagConfigPath = ""
	flagServerURL = ""
	flagTokenStorePath = ""
	flagJSON = false
	flagVerbose = false
	flagDebug = false
	flagQuiet = false

	t.Cleanup(func() {
		flagConfigPath = ""
		flagServerURL = ""
		flagTokenStorePath = ""
		flagJSON = false
		flagVerbose = false
		flagDebug = false
		flagQuiet = false
	})
}
