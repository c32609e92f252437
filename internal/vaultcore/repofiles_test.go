package vaultcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultengine/vaultengine/internal/remoteapi"
	"github.com/vaultengine/vaultengine/internal/vaultcipher"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

// wireRebuildRepoFiles registers RebuildRepoFilesFromRemote as a MutationOn
// listener for EventRemoteFiles, so
// every remote-mirror mutation also refreshes the decrypted overlay within
// the same pass.
func wireRebuildRepoFiles(t *testing.T, s *Store) {
	t.Helper()

	id := s.GetNextID()
	s.MutationOn(id, []Event{EventRemoteFiles}, func(state *State, ms *MutationState) {
		RebuildRepoFilesFromRemote(state, ms)
	})
}

// wireDetailsMoveTracking registers RewriteMovedDetailsPaths as a second
// MutationOn listener for
// EventRemoteFiles, registered after wireRebuildRepoFiles so it observes
// RepoFiles.MovedFiles already populated earlier in the same pass.
func wireDetailsMoveTracking(t *testing.T, s *Store) {
	t.Helper()

	id := s.GetNextID()
	s.MutationOn(id, []Event{EventRemoteFiles}, func(state *State, ms *MutationState) {
		RewriteMovedDetailsPaths(state, ms)
	})
}

func unlockedRepoAtRoot(t *testing.T, s *Store) vaultid.RepoId {
	t.Helper()

	cipher := vaultcipher.NewFakeCipher()
	validator := "pw-check"
	encrypted, err := cipher.EncryptName(validator)
	require.NoError(t, err)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		ReposLoaded(state, notify, ms, mutationNotify, []remoteapi.RepoDTO{
			{
				ID:                         "repo-1",
				Name:                       "Personal",
				MountID:                    "mount-1",
				Path:                       "/vault",
				PasswordValidator:          validator,
				PasswordValidatorEncrypted: encrypted,
			},
		})

		return nil
	})

	require.NoError(t, UnlockRepo(s, "repo-1", "whatever", UnlockModeUnlock, fakeCipherFactory))

	return "repo-1"
}

func TestRebuildRepoFilesFromRemote_DecryptsNameUnderUnlockedRepo(t *testing.T) {
	s := NewStore(nil)
	wireRebuildRepoFiles(t, s)

	repoID := unlockedRepoAtRoot(t, s)

	cipher := vaultcipher.NewFakeCipher()
	encName, err := cipher.EncryptName("notes.txt")
	require.NoError(t, err)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileCreated(state, notify, ms, mutationNotify, "mount-1", vaultid.RemotePath("/vault/"+encName), remoteapi.FileEntry{
			Name: encName,
			Type: "file",
			Size: 123,
		})

		return nil
	})

	repoFileID := GetRepoFileID(repoID, vaultid.EncryptedPath("/"+encName))

	rf := WithR(s, func(state *State) RepoFile {
		return state.RepoFiles.Files[repoFileID]
	})

	require.NotNil(t, rf.Name)
	assert.Equal(t, "notes.txt", string(*rf.Name))
	assert.True(t, rf.Size.Decrypted)
}

func TestRebuildRepoFilesFromRemote_IgnoresFilesOutsideRepoTree(t *testing.T) {
	s := NewStore(nil)
	wireRebuildRepoFiles(t, s)

	unlockedRepoAtRoot(t, s)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileCreated(state, notify, ms, mutationNotify, "mount-1", "/elsewhere/other.txt", remoteapi.FileEntry{
			Name: "other.txt",
			Type: "file",
		})

		return nil
	})

	count := WithR(s, func(state *State) int {
		return len(state.RepoFiles.Files)
	})

	assert.Equal(t, 0, count, "a remote file outside the repo's tree_path must not produce a RepoFile overlay entry")
}

func TestRebuildRepoFilesFromRemote_IgnoresLockedRepo(t *testing.T) {
	s := NewStore(nil)
	wireRebuildRepoFiles(t, s)

	cipher := vaultcipher.NewFakeCipher()
	validator := "pw"
	encrypted, err := cipher.EncryptName(validator)
	require.NoError(t, err)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		ReposLoaded(state, notify, ms, mutationNotify, []remoteapi.RepoDTO{
			{ID: "repo-1", Name: "Personal", MountID: "mount-1", Path: "/vault", PasswordValidator: validator, PasswordValidatorEncrypted: encrypted},
		})

		return nil
	})

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileCreated(state, notify, ms, mutationNotify, "mount-1", "/vault/somefile", remoteapi.FileEntry{Name: "somefile", Type: "file"})

		return nil
	})

	count := WithR(s, func(state *State) int {
		return len(state.RepoFiles.Files)
	})

	assert.Equal(t, 0, count, "a locked repo must not get an overlay built for it")
}

func TestLockRepo_PurgesOverlayEntriesForThatRepoOnly(t *testing.T) {
	s := NewStore(nil)
	wireRebuildRepoFiles(t, s)

	repoID := unlockedRepoAtRoot(t, s)

	cipher := vaultcipher.NewFakeCipher()
	encName, err := cipher.EncryptName("a.txt")
	require.NoError(t, err)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileCreated(state, notify, ms, mutationNotify, "mount-1", vaultid.RemotePath("/vault/"+encName), remoteapi.FileEntry{Name: encName, Type: "file"})

		return nil
	})

	require.NoError(t, LockRepo(s, repoID))

	count := WithR(s, func(state *State) int {
		return len(state.RepoFiles.Files)
	})

	assert.Equal(t, 0, count)
}

func TestRewriteMovedDetailsPaths_RewritesOpenSessionOnMove(t *testing.T) {
	s := NewStore(nil)
	wireRebuildRepoFiles(t, s)
	wireDetailsMoveTracking(t, s)

	repoID := unlockedRepoAtRoot(t, s)

	cipher := vaultcipher.NewFakeCipher()
	oldEncName, err := cipher.EncryptName("old.txt")
	require.NoError(t, err)
	newEncName, err := cipher.EncryptName("new.txt")
	require.NoError(t, err)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileCreated(state, notify, ms, mutationNotify, "mount-1", vaultid.RemotePath("/vault/"+oldEncName), remoteapi.FileEntry{
			Name: oldEncName,
			Type: "file",
		})

		return nil
	})

	id := CreateDetails(s, repoID, vaultid.DecryptedPath("/old.txt"))

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileMoved(state, notify, ms, mutationNotify, "mount-1",
			vaultid.RemotePath("/vault/"+oldEncName), vaultid.RemotePath("/vault/"+newEncName),
			remoteapi.FileEntry{Name: newEncName, Type: "file"})

		return nil
	})

	path := WithR(s, func(state *State) vaultid.DecryptedPath {
		return state.RepoFilesDetails.Sessions[id].Path
	})

	assert.Equal(t, vaultid.DecryptedPath("/new.txt"), path, "an open Details session must follow its file's new location")
}

func TestRewriteMovedDetailsPaths_IgnoresSessionInDifferentRepo(t *testing.T) {
	s := NewStore(nil)
	wireRebuildRepoFiles(t, s)
	wireDetailsMoveTracking(t, s)

	repoID := unlockedRepoAtRoot(t, s)

	cipher := vaultcipher.NewFakeCipher()
	oldEncName, err := cipher.EncryptName("old.txt")
	require.NoError(t, err)
	newEncName, err := cipher.EncryptName("new.txt")
	require.NoError(t, err)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileCreated(state, notify, ms, mutationNotify, "mount-1", vaultid.RemotePath("/vault/"+oldEncName), remoteapi.FileEntry{
			Name: oldEncName,
			Type: "file",
		})

		return nil
	})

	id := CreateDetails(s, repoID, vaultid.DecryptedPath("/unrelated.txt"))

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileMoved(state, notify, ms, mutationNotify, "mount-1",
			vaultid.RemotePath("/vault/"+oldEncName), vaultid.RemotePath("/vault/"+newEncName),
			remoteapi.FileEntry{Name: newEncName, Type: "file"})

		return nil
	})

	path := WithR(s, func(state *State) vaultid.DecryptedPath {
		return state.RepoFilesDetails.Sessions[id].Path
	})

	assert.Equal(t, vaultid.DecryptedPath("/unrelated.txt"), path, "a session whose own file did not move must be left untouched")
}
