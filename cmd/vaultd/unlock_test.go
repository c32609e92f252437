package main

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultengine/vaultengine/internal/fakeremote"
	"github.com/vaultengine/vaultengine/internal/remoteapi"
	"github.com/vaultengine/vaultengine/internal/vaultcipher"
)

func seedRepoAtPath(t *testing.T, srv *fakeremote.Server, mountID, path, password string) {
	t.Helper()

	srv.AddMount(mountID, "Personal", "hosted")

	cipher := vaultcipher.NewFakeCipher()
	encrypted, err := cipher.EncryptName(password)
	require.NoError(t, err)

	client := remoteapi.NewClient(srv.URL(), http.DefaultClient, noopTokenSource{}, discardLogger())
	_, err = client.CreateRepo(context.Background(), remoteapi.VaultRepoCreate{
		MountID:                    mountID,
		Path:                       path,
		PasswordValidator:          password,
		PasswordValidatorEncrypted: encrypted,
	})
	require.NoError(t, err)
}

func TestRunUnlock_RequiresPassword(t *testing.T) {
	resetFlags(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"unlock", "/vault", "--server-url", "https://vault.example.com"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--password is required")
}

func TestRunUnlock_UnknownRepoPathErrors(t *testing.T) {
	resetFlags(t)

	srv := fakeremote.New()
	t.Cleanup(srv.Close)

	tokenPath := filepath.Join(t.TempDir(), "tokens.db")
	seedSession(t, tokenPath, srv.URL())

	cmd := newRootCmd()
	cmd.SetArgs([]string{"unlock", "/nope", "--password", "pw", "--server-url", srv.URL(), "--token-store", tokenPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no repo found at path")
}

func TestRunUnlock_CorrectPasswordUnlocksRepo(t *testing.T) {
	resetFlags(t)

	srv := fakeremote.New()
	t.Cleanup(srv.Close)
	seedRepoAtPath(t, srv, "mount-1", "/vault", "correct horse")

	tokenPath := filepath.Join(t.TempDir(), "tokens.db")
	seedSession(t, tokenPath, srv.URL())

	cmd := newRootCmd()
	cmd.SetArgs([]string{"unlock", "/vault", "--password", "correct horse", "--server-url", srv.URL(), "--token-store", tokenPath})

	out := captureStdout(t, func() {
		require.NoError(t, cmd.Execute())
	})

	assert.Contains(t, out, "Repo unlocked")
}

func TestRunUnlock_VerifyModePrintsWithoutUnlocking(t *testing.T) {
	resetFlags(t)

	srv := fakeremote.New()
	t.Cleanup(srv.Close)
	seedRepoAtPath(t, srv, "mount-1", "/vault", "correct horse")

	tokenPath := filepath.Join(t.TempDir(), "tokens.db")
	seedSession(t, tokenPath, srv.URL())

	cmd := newRootCmd()
	cmd.SetArgs([]string{"unlock", "/vault", "--password", "correct horse", "--verify", "--server-url", srv.URL(), "--token-store", tokenPath})

	out := captureStdout(t, func() {
		require.NoError(t, cmd.Execute())
	})

	assert.Contains(t, out, "Password verified")
}
