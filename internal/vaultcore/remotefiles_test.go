package vaultcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultengine/vaultengine/internal/remoteapi"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

func TestLoadBundle_InsertsRootAndSortsChildrenDirsFirst(t *testing.T) {
	s := NewStore(nil)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		LoadBundle(state, notify, ms, mutationNotify, "mount-1", "/", remoteapi.Bundle{
			File: remoteapi.FileEntry{Name: "", Type: "dir"},
			Files: []remoteapi.FileEntry{
				{Name: "zzz.txt", Type: "file"},
				{Name: "aaa-dir", Type: "dir"},
				{Name: "bbb.txt", Type: "file"},
			},
		})

		return nil
	})

	rootID := GetFileID("mount-1", "/")

	names := WithR(s, func(state *State) []string {
		var out []string

		for _, id := range state.RemoteFiles.Children[rootID] {
			out = append(out, string(state.RemoteFiles.Files[id].Name))
		}

		return out
	})

	require.Equal(t, []string{"aaa-dir", "bbb.txt", "zzz.txt"}, names)
}

func TestFileCreated_SynthesizesMissingAncestorDirs(t *testing.T) {
	s := NewStore(nil)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileCreated(state, notify, ms, mutationNotify, "mount-1", "/a/b/c.txt", remoteapi.FileEntry{
			Name: "c.txt",
			Type: "file",
			Size: 5,
		})

		return nil
	})

	exists := WithR(s, func(state *State) bool {
		aID := GetFileID("mount-1", "/a")
		bID := GetFileID("mount-1", "/a/b")
		cID := GetFileID("mount-1", "/a/b/c.txt")

		_, aOK := state.RemoteFiles.Files[aID]
		_, bOK := state.RemoteFiles.Files[bID]
		_, cOK := state.RemoteFiles.Files[cID]

		return aOK && bOK && cOK
	})

	assert.True(t, exists, "FileCreated must backfill every missing ancestor directory")
}

func TestFileRemoved_CascadesToDescendants(t *testing.T) {
	s := NewStore(nil)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileCreated(state, notify, ms, mutationNotify, "mount-1", "/a/b.txt", remoteapi.FileEntry{Name: "b.txt", Type: "file"})

		return nil
	})

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileRemoved(state, notify, ms, mutationNotify, "mount-1", "/a")

		return nil
	})

	remaining := WithR(s, func(state *State) int {
		return len(state.RemoteFiles.Files)
	})

	assert.Equal(t, 0, remaining, "removing /a must cascade to /a/b.txt too")
}

func TestFileMoved_RekeysSubtreeAndPreservesChildren(t *testing.T) {
	s := NewStore(nil)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileCreated(state, notify, ms, mutationNotify, "mount-1", "/src", remoteapi.FileEntry{Name: "src", Type: "dir"})
		FileCreated(state, notify, ms, mutationNotify, "mount-1", "/src/child.txt", remoteapi.FileEntry{Name: "child.txt", Type: "file"})

		return nil
	})

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileMoved(state, notify, ms, mutationNotify, "mount-1", "/src", "/dst", remoteapi.FileEntry{Name: "dst", Type: "dir"})

		return nil
	})

	childID := GetFileID("mount-1", "/dst/child.txt")
	oldChildID := GetFileID("mount-1", "/src/child.txt")

	exists, oldGone := WithR(s, func(state *State) (bool, bool) {
		_, ok := state.RemoteFiles.Files[childID]
		_, oldOK := state.RemoteFiles.Files[oldChildID]

		return ok, !oldOK
	})

	assert.True(t, exists, "moving a directory must re-home its children under the new path")
	assert.True(t, oldGone)
}

func TestFileCopied_LeavesSourceInPlace(t *testing.T) {
	s := NewStore(nil)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileCreated(state, notify, ms, mutationNotify, "mount-1", "/a.txt", remoteapi.FileEntry{Name: "a.txt", Type: "file"})

		return nil
	})

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileCopied(state, notify, ms, mutationNotify, "mount-1", "/b.txt", remoteapi.FileEntry{Name: "b.txt", Type: "file"})

		return nil
	})

	srcID := GetFileID("mount-1", "/a.txt")
	dstID := GetFileID("mount-1", "/b.txt")

	srcOK, dstOK := WithR(s, func(state *State) (bool, bool) {
		_, s := state.RemoteFiles.Files[srcID]
		_, d := state.RemoteFiles.Files[dstID]

		return s, d
	})

	assert.True(t, srcOK)
	assert.True(t, dstOK)
}

func TestFileTagsUpdated_ReplacesEntryInPlace(t *testing.T) {
	s := NewStore(nil)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileCreated(state, notify, ms, mutationNotify, "mount-1", "/a.txt", remoteapi.FileEntry{Name: "a.txt", Type: "file"})

		return nil
	})

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		FileTagsUpdated(state, notify, ms, mutationNotify, "mount-1", "/a.txt", remoteapi.FileEntry{
			Name: "a.txt",
			Type: "file",
			Tags: map[string][]string{"color": {"red"}},
		})

		return nil
	})

	tags := WithR(s, func(state *State) map[string][]string {
		return state.RemoteFiles.Files[GetFileID("mount-1", "/a.txt")].Tags
	})

	assert.Equal(t, map[string][]string{"color": {"red"}}, tags)
}

func TestExtCategory_ClassifiesKnownExtensions(t *testing.T) {
	ext, category := extCategory("photo.JPG")
	assert.Equal(t, "jpg", ext)
	assert.Equal(t, "image", category)

	ext, category = extCategory("noext")
	assert.Equal(t, "", ext)
	assert.Equal(t, "generic", category)

	ext, category = extCategory("archive.tar.gz")
	assert.Equal(t, "gz", ext)
	assert.Equal(t, "generic", category)
}

func TestGetFileID_IsCaseInsensitiveOnPath(t *testing.T) {
	a := GetFileID("mount-1", vaultid.RemotePath("/Foo/Bar.txt"))
	b := GetFileID("mount-1", vaultid.RemotePath("/foo/bar.txt"))

	assert.Equal(t, a, b, "remote file identity must be case-insensitive")
}
