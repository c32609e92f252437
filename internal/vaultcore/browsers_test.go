package vaultcore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultengine/vaultengine/internal/remoteapi"
	"github.com/vaultengine/vaultengine/internal/vaultcipher"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

func TestBreadcrumbs_Root(t *testing.T) {
	crumbs := Breadcrumbs(vaultid.DecryptedRoot)

	require.Len(t, crumbs, 1)
	assert.True(t, crumbs[0].Last)
	assert.Equal(t, vaultid.DecryptedRoot, crumbs[0].Path)
}

func TestBreadcrumbs_NestedPathBuildsOneSegmentPerLevel(t *testing.T) {
	crumbs := Breadcrumbs(vaultid.DecryptedPath("/a/b/c"))

	require.Len(t, crumbs, 4) // root + a + b + c
	assert.Equal(t, "", crumbs[0].Name)
	assert.Equal(t, "a", crumbs[1].Name)
	assert.Equal(t, "b", crumbs[2].Name)
	assert.Equal(t, "c", crumbs[3].Name)
	assert.True(t, crumbs[3].Last)
	assert.False(t, crumbs[2].Last)
}

func TestCreateBrowser_DestroyBrowser(t *testing.T) {
	s := NewStore(nil)

	id := CreateBrowser(s, "repo-1", vaultid.DecryptedRoot)

	exists := WithR(s, func(state *State) bool {
		_, ok := state.RepoFilesBrowsers.Browsers[id]

		return ok
	})
	assert.True(t, exists)

	DestroyBrowser(s, id)

	existsAfter := WithR(s, func(state *State) bool {
		_, ok := state.RepoFilesBrowsers.Browsers[id]

		return ok
	})
	assert.False(t, existsAfter)
}

func TestBrowserInfo_RepoNotFound(t *testing.T) {
	s := NewStore(nil)

	id := CreateBrowser(s, "does-not-exist", vaultid.DecryptedRoot)

	info := WithR(s, func(state *State) RepoFilesBrowserInfo {
		return BrowserInfo(state, id)
	})

	assert.Equal(t, BrowserStatusRepoNotFound, info.Status)
}

func TestBrowserInfo_RepoLocked(t *testing.T) {
	s := NewStore(nil)

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

	id := CreateBrowser(s, "repo-1", vaultid.DecryptedRoot)

	info := WithR(s, func(state *State) RepoFilesBrowserInfo {
		return BrowserInfo(state, id)
	})

	assert.Equal(t, BrowserStatusRepoLocked, info.Status)
}

func TestBrowserLoaded_TracksStatusAndError(t *testing.T) {
	s := NewStore(nil)

	id := CreateBrowser(s, "repo-1", vaultid.DecryptedRoot)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		BrowserLoadStarted(state, notify, ms, mutationNotify, id)

		return nil
	})

	loading := WithR(s, func(state *State) BrowserLoadStatus {
		return state.RepoFilesBrowsers.Browsers[id].LoadStatus
	})
	assert.Equal(t, BrowserLoading, loading)

	wantErr := errors.New("boom")

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		BrowserLoaded(state, notify, ms, mutationNotify, id, wantErr)

		return nil
	})

	b := WithR(s, func(state *State) RepoFilesBrowser {
		return state.RepoFilesBrowsers.Browsers[id]
	})
	assert.Equal(t, BrowserError, b.LoadStatus)
	assert.ErrorIs(t, b.LoadError, wantErr)
}

func TestBrowserLoaded_PersistsAcrossSubsequentLoadingAndError(t *testing.T) {
	s := NewStore(nil)

	id := CreateBrowser(s, "repo-1", vaultid.DecryptedRoot)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		BrowserLoadStarted(state, notify, ms, mutationNotify, id)

		return nil
	})

	loaded := WithR(s, func(state *State) bool {
		return state.RepoFilesBrowsers.Browsers[id].Loaded
	})
	assert.False(t, loaded, "no load has succeeded yet")

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		BrowserLoaded(state, notify, ms, mutationNotify, id, nil)

		return nil
	})

	loaded = WithR(s, func(state *State) bool {
		return state.RepoFilesBrowsers.Browsers[id].Loaded
	})
	assert.True(t, loaded)

	// A background refresh that starts, and then fails, must not clear
	// Loaded: the host UI should still be able to show stale data rather
	// than reverting to a bare first-load spinner.
	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		BrowserLoadStarted(state, notify, ms, mutationNotify, id)
		BrowserLoaded(state, notify, ms, mutationNotify, id, errors.New("boom"))

		return nil
	})

	b := WithR(s, func(state *State) RepoFilesBrowser {
		return state.RepoFilesBrowsers.Browsers[id]
	})
	assert.True(t, b.Loaded, "a prior successful load must stay observed even after a later refresh fails")
	assert.Equal(t, BrowserError, b.LoadStatus)
}

func TestSelectFile_ClearSelection(t *testing.T) {
	s := NewStore(nil)

	id := CreateBrowser(s, "repo-1", vaultid.DecryptedRoot)

	SelectFile(s, id, "file-1", true)
	SelectFile(s, id, "file-2", true)

	selected := WithR(s, func(state *State) int {
		return len(state.RepoFilesBrowsers.Browsers[id].Selected)
	})
	assert.Equal(t, 2, selected)

	SelectFile(s, id, "file-1", false)

	selected = WithR(s, func(state *State) int {
		return len(state.RepoFilesBrowsers.Browsers[id].Selected)
	})
	assert.Equal(t, 1, selected)

	ClearSelection(s, id)

	selected = WithR(s, func(state *State) int {
		return len(state.RepoFilesBrowsers.Browsers[id].Selected)
	})
	assert.Equal(t, 0, selected)
}

func TestSetBrowserSort_ReordersFileIDsBySize(t *testing.T) {
	s := NewStore(nil)

	wireRebuildRepoFiles(t, s)
	repoID := unlockedRepoAtRoot(t, s)

	cipher := vaultcipher.NewFakeCipher()

	createEncrypted := func(name string, size int64) {
		encName, err := cipher.EncryptName(name)
		require.NoError(t, err)

		Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
			FileCreated(state, notify, ms, mutationNotify, "mount-1", vaultid.RemotePath("/vault/"+encName), remoteapi.FileEntry{
				Name: encName,
				Type: "file",
				Size: size,
			})

			return nil
		})
	}

	createEncrypted("big.bin", 1000)
	createEncrypted("small.bin", 10)

	id := CreateBrowser(s, repoID, vaultid.DecryptedRoot)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		BrowserLoaded(state, notify, ms, mutationNotify, id, nil)

		return nil
	})

	SetBrowserSort(s, id, SortBySize, false)

	names := WithR(s, func(state *State) []string {
		b := state.RepoFilesBrowsers.Browsers[id]

		var out []string

		for _, fileID := range b.FileIDs {
			f := state.RepoFiles.Files[fileID]
			if f.Name != nil {
				out = append(out, string(*f.Name))
			}
		}

		return out
	})

	require.Equal(t, []string{"small.bin", "big.bin"}, names)

	SetBrowserSort(s, id, SortBySize, true)

	names = WithR(s, func(state *State) []string {
		b := state.RepoFilesBrowsers.Browsers[id]

		var out []string

		for _, fileID := range b.FileIDs {
			f := state.RepoFiles.Files[fileID]
			if f.Name != nil {
				out = append(out, string(*f.Name))
			}
		}

		return out
	})

	require.Equal(t, []string{"big.bin", "small.bin"}, names)
}
