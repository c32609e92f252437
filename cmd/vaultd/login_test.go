package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultengine/vaultengine/internal/auth"
	"github.com/vaultengine/vaultengine/internal/tokenstore"
)

const testDeviceCodeJSON = `{
	"device_code": "test-device-code",
	"user_code": "ABCD-1234",
	"verification_uri": "https://vault.example.com/device",
	"expires_in": 900,
	"interval": 1
}`

const testTokenJSON = `{
	"access_token": "test-access-token",
	"token_type": "Bearer",
	"refresh_token": "test-refresh-token",
	"expires_in": 3600,
	"user_id": "user-1"
}`

// newMockAuthServer starts a server handling the device-code and token
// endpoints vaultd's auth flow expects under a single base URL, the
// way the vault host exposes them.
func newMockAuthServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /oauth/device/code", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testDeviceCodeJSON))
	})

	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testTokenJSON))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

// captureStdout redirects os.Stdout for the duration of f, the way
// format_test.go captures os.Stderr around statusf.
func captureStdout(t *testing.T, f func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = w
	t.Cleanup(func() { os.Stdout = oldStdout })

	f()

	w.Close()

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	os.Stdout = oldStdout

	return string(out)
}

func TestRunLogin_RequiresServerURL(t *testing.T) {
	resetFlags(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"login"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server URL is required")
}

func TestRunLogin_PersistsSessionAndPrintsUserCode(t *testing.T) {
	resetFlags(t)

	srv := newMockAuthServer(t)
	tokenPath := filepath.Join(t.TempDir(), "tokens.db")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"login", "--server-url", srv.URL, "--token-store", tokenPath})

	out := captureStdout(t, func() {
		require.NoError(t, cmd.Execute())
	})

	assert.Contains(t, out, "ABCD-1234")
	assert.Contains(t, out, "Login successful")

	store, err := tokenstore.Open(context.Background(), tokenPath, discardLogger())
	require.NoError(t, err)
	defer store.Close()

	sess, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "user-1", sess.UserID)
}

func TestRunLogout_ClearsPersistedSession(t *testing.T) {
	resetFlags(t)

	tokenPath := filepath.Join(t.TempDir(), "tokens.db")

	ctx := context.Background()
	store, err := tokenstore.Open(ctx, tokenPath, discardLogger())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, tokenstore.Session{
		ServerURL: "https://vault.example.com", UserID: "user-1",
		AccessToken: "a", RefreshToken: "r", TokenType: "Bearer",
	}))
	store.Close()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"logout", "--token-store", tokenPath})

	out := captureStdout(t, func() {
		require.NoError(t, cmd.Execute())
	})
	assert.Contains(t, out, "Logged out")

	store2, err := tokenstore.Open(ctx, tokenPath, discardLogger())
	require.NoError(t, err)
	defer store2.Close()

	_, err = auth.TokenSourceFromStore(ctx, store2, "client-1", discardLogger())
	assert.ErrorIs(t, err, auth.ErrNotLoggedIn)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
