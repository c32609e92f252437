package vaultcore

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/vaultengine/vaultengine/internal/remoteapi"
	"github.com/vaultengine/vaultengine/internal/vaultcipher"
	"github.com/vaultengine/vaultengine/internal/vaulterr"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

// RepoState is Locked or Unlocked{cipher}.
type RepoState struct {
	Unlocked bool
	Cipher   vaultcipher.Cipher // nil unless Unlocked
}

// Repo is an end-to-end encrypted vault rooted at a remote path under a
// mount.
type Repo struct {
	ID                          vaultid.RepoId
	Name                        string
	MountID                     vaultid.MountId
	TreePath                    vaultid.RemotePath
	Salt                        *string
	PasswordValidator           string
	PasswordValidatorEncrypted  string
	State                       RepoState
}

// ReposState holds all known repos.
type ReposState struct {
	Repos map[vaultid.RepoId]Repo
}

// CipherFactory derives a Cipher from a password (and optional salt). It is
// the seam to the out-of-scope AEAD primitive; this module ships no real
// implementation, and both the tests and cmd/vaultd use
// vaultcipher.NewFakeCipher.
type CipherFactory func(password string, salt *string) vaultcipher.Cipher

// RepoUnlockMode distinguishes a real unlock (installs the cipher) from a
// password verification probe that never mutates state.
type RepoUnlockMode int

const (
	UnlockModeUnlock RepoUnlockMode = iota
	UnlockModeVerify
)

// ReposLoaded merges the result of a GET /vault-repos call into the known
// repo set: listed repos are stored as loaded (an already-unlocked repo keeps
// its unlocked state), and repos absent from the load are left in place.
func ReposLoaded(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, repos []remoteapi.RepoDTO) {
	if state.Repos.Repos == nil {
		state.Repos.Repos = make(map[vaultid.RepoId]Repo)
	}

	for _, dto := range repos {
		id := vaultid.RepoId(dto.ID)

		existing, wasUnlocked := state.Repos.Repos[id]

		r := Repo{
			ID:                         id,
			Name:                       dto.Name,
			MountID:                    vaultid.MountId(dto.MountID),
			TreePath:                   vaultid.RemotePath(dto.Path),
			Salt:                       dto.Salt,
			PasswordValidator:          dto.PasswordValidator,
			PasswordValidatorEncrypted: dto.PasswordValidatorEncrypted,
		}

		if wasUnlocked && existing.State.Unlocked {
			r.State = existing.State
		}

		state.Repos.Repos[id] = r
	}

	notify(EventRepos)
	mutationNotify(EventRepos, state, mutationState)
}

// BuildCipher derives a Cipher for repoID from password and verifies it
// against the stored password validator without mutating state: derive the
// cipher, encrypt the stored validator plaintext, compare constant-time
// with the stored ciphertext.
func BuildCipher(state *State, repoID vaultid.RepoId, password string, factory CipherFactory) (vaultcipher.Cipher, error) {
	repo, ok := state.Repos.Repos[repoID]
	if !ok {
		return nil, vaulterr.New(vaulterr.KindAPINotFound, "repo %s not found", repoID)
	}

	cipher := factory(password, repo.Salt)

	encrypted, err := cipher.EncryptName(repo.PasswordValidator)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindInvalidPassword, err, "encrypting password validator")
	}

	if subtle.ConstantTimeCompare([]byte(encrypted), []byte(repo.PasswordValidatorEncrypted)) != 1 {
		// The full ciphertext is compared byte for byte; no nonce is
		// stripped first. This matches only for a deterministic cipher
		// such as vaultcipher.FakeCipher; a cipher that emits a fresh
		// nonce per call never matches here, even for the correct password.
		return nil, vaulterr.Wrap(vaulterr.KindInvalidPassword, vaulterr.ErrInvalidPassword, "password validator mismatch")
	}

	return cipher, nil
}

// UnlockRepo performs the unlock/verify operation. Unlock installs the
// cipher and transitions state to Unlocked; Verify performs the same check
// without installing anything.
func UnlockRepo(store *Store, repoID vaultid.RepoId, password string, mode RepoUnlockMode, factory CipherFactory) error {
	var buildErr error

	cipher := WithR(store, func(state *State) vaultcipher.Cipher {
		c, err := BuildCipher(state, repoID, password, factory)
		buildErr = err

		return c
	})

	if buildErr != nil {
		return buildErr
	}

	if mode == UnlockModeVerify {
		return nil
	}

	return Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) error {
		repo, ok := state.Repos.Repos[repoID]
		if !ok {
			return vaulterr.New(vaulterr.KindAPINotFound, "repo %s not found", repoID)
		}

		// Unlocking an already-unlocked repo is a no-op.
		if repo.State.Unlocked {
			return nil
		}

		repo.State = RepoState{Unlocked: true, Cipher: cipher}
		state.Repos.Repos[repoID] = repo

		notify(EventRepos)
		mutationNotify(EventRepos, state, mutationState)

		return nil
	})
}

// LockRepo discards the cipher and purges every RepoFile belonging to
// repoID, setting state back to Locked.
func LockRepo(store *Store, repoID vaultid.RepoId) error {
	return Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) error {
		repo, ok := state.Repos.Repos[repoID]
		if !ok {
			return vaulterr.New(vaulterr.KindAPINotFound, "repo %s not found", repoID)
		}

		repo.State = RepoState{}
		state.Repos.Repos[repoID] = repo

		purgeRepoFiles(state, repoID)

		notify(EventRepos)
		notify(EventRepoFiles)
		mutationNotify(EventRepos, state, mutationState)
		mutationNotify(EventRepoFiles, state, mutationState)

		return nil
	})
}

// DefaultRepoDirNames are the subdirectories created under a new repo's
// root right after creation, unless they already exist.
var DefaultRepoDirNames = []string{
	"My private documents",
	"My private pictures",
	"My private videos",
}

// RemoteClient is the subset of remoteapi.Client the repo lifecycle needs,
// declared at the consumer per "accept interfaces, return structs".
type RemoteClient interface {
	CreateRepo(ctx context.Context, body remoteapi.VaultRepoCreate) (remoteapi.RepoDTO, error)
	DeleteRepo(ctx context.Context, repoID string) error
	NewFolder(ctx context.Context, mountID string, body remoteapi.FilesNewFolder) (remoteapi.FileEntry, error)
	GetFileInfo(ctx context.Context, mountID, path string) (remoteapi.FileEntry, error)
}

// CreateRepo performs POST /vault-repos, then creates the default
// subdirectories with encrypted names, skipping any that already exist.
func CreateRepo(ctx context.Context, client RemoteClient, cipher vaultcipher.Cipher, mountID vaultid.MountId, path vaultid.RemotePath, passwordValidator, passwordValidatorEncrypted string, salt *string) (remoteapi.RepoDTO, error) {
	dto, err := client.CreateRepo(ctx, remoteapi.VaultRepoCreate{
		MountID:                     string(mountID),
		Path:                        string(path),
		Salt:                        salt,
		PasswordValidator:           passwordValidator,
		PasswordValidatorEncrypted:  passwordValidatorEncrypted,
	})
	if err != nil {
		return remoteapi.RepoDTO{}, err
	}

	for _, name := range DefaultRepoDirNames {
		encName, err := cipher.EncryptName(name)
		if err != nil {
			return dto, fmt.Errorf("vaultcore: encrypting default dir name %q: %w", name, err)
		}

		if _, err := client.GetFileInfo(ctx, string(mountID), string(path)+"/"+encName); err == nil {
			continue // already exists
		}

		if _, err := client.NewFolder(ctx, string(mountID), remoteapi.FilesNewFolder{
			Path: string(path),
			Name: encName,
		}); err != nil {
			return dto, fmt.Errorf("vaultcore: creating default dir %q: %w", name, err)
		}
	}

	return dto, nil
}

// RemoveRepo verifies password, then deletes the repo on the server,
// treating a server-NotFound as success.
func RemoveRepo(ctx context.Context, store *Store, client RemoteClient, repoID vaultid.RepoId, password string, factory CipherFactory) error {
	if err := UnlockRepo(store, repoID, password, UnlockModeVerify, factory); err != nil {
		return err
	}

	err := client.DeleteRepo(ctx, string(repoID))
	if err != nil && !isNotFound(err) {
		return err
	}

	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		delete(state.Repos.Repos, repoID)
		purgeRepoFiles(state, repoID)

		notify(EventRepos)
		notify(EventRepoFiles)
		mutationNotify(EventRepos, state, mutationState)
		mutationNotify(EventRepoFiles, state, mutationState)

		return nil
	})

	return nil
}

func isNotFound(err error) bool {
	var apiErr *remoteapi.Error

	return asError(err, &apiErr) && apiErr.StatusCode == 404
}

func asError(err error, target **remoteapi.Error) bool {
	for err != nil {
		if e, ok := err.(*remoteapi.Error); ok {
			*target = e

			return true
		}

		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}

		err = u.Unwrap()
	}

	return false
}
