package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultengine/vaultengine/internal/vaultcipher"
	"github.com/vaultengine/vaultengine/internal/vaultcore"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

func newUnlockCmd() *cobra.Command {
	var password string

	var verify bool

	cmd := &cobra.Command{
		Use:   "unlock <repo-path>",
		Short: "Unlock (or verify the password of) a vault repo",
		Long: `Unlock derives the repo's cipher from --password and installs it, or with
--verify checks the password without installing anything or mutating state.

The actual AEAD cipher derivation is out of scope for this engine (the real
implementation lives behind the client's encryption primitive); this command
exercises the unlock/verify state machine against vaultcipher.FakeCipher,
the seam production code would plug a real cipher into.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnlock(cmd, args[0], password, verify)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "repo password")
	cmd.Flags().BoolVar(&verify, "verify", false, "verify the password without unlocking")

	return cmd
}

func runUnlock(cmd *cobra.Command, repoPath, password string, verify bool) error {
	cc := mustCLIContext(cmd.Context())

	if password == "" {
		return fmt.Errorf("--password is required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := openSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return fmt.Errorf("not logged in: %w", err)
	}
	defer sess.Close()

	if err := loadAll(ctx, sess); err != nil {
		return fmt.Errorf("loading server state: %w", err)
	}

	repoID, err := findRepoByPath(sess.vault, repoPath)
	if err != nil {
		return err
	}

	factory := func(password string, salt *string) vaultcipher.Cipher {
		return vaultcipher.NewFakeCipher()
	}

	mode := vaultcore.UnlockModeUnlock
	if verify {
		mode = vaultcore.UnlockModeVerify
	}

	if err := vaultcore.UnlockRepo(sess.vault, repoID, password, mode, factory); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}

	if verify {
		fmt.Println("Password verified.")
	} else {
		fmt.Println("Repo unlocked.")
	}

	return nil
}

func findRepoByPath(store *vaultcore.Store, path string) (vaultid.RepoId, error) {
	found := vaultcore.WithR(store, func(state *vaultcore.State) vaultid.RepoId {
		for id, repo := range state.Repos.Repos {
			if string(repo.TreePath) == path {
				return id
			}
		}

		return ""
	})

	if found == "" {
		return "", fmt.Errorf("no repo found at path %s", path)
	}

	return found, nil
}
