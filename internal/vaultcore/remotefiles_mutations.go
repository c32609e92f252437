package vaultcore

import (
	"github.com/vaultengine/vaultengine/internal/remoteapi"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

// LoadBundle replaces the children of root atomically with the entries of
// bundle, inserting/overwriting every listed RemoteFile.
func LoadBundle(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, mountID vaultid.MountId, rootPath vaultid.RemotePath, bundle remoteapi.Bundle) {
	rootID := GetFileID(mountID, rootPath)

	rootFile := remoteFileFromAPI(mountID, rootPath, bundle.File)
	state.RemoteFiles.Files[rootID] = rootFile

	childIDs := make([]vaultid.RemoteFileId, 0, len(bundle.Files))

	for _, entry := range bundle.Files {
		childPath := vaultid.JoinPathName(rootPath, vaultid.RemoteName(entry.Name))
		childFile := remoteFileFromAPI(mountID, childPath, entry)
		state.RemoteFiles.Files[childFile.ID] = childFile
		childIDs = append(childIDs, childFile.ID)
	}

	sortChildren(state.RemoteFiles.Files, childIDs)
	state.RemoteFiles.Children[rootID] = childIDs

	if state.RemoteFiles.LoadedRoots == nil {
		state.RemoteFiles.LoadedRoots = make(map[vaultid.RemoteFileId]struct{})
	}

	state.RemoteFiles.LoadedRoots[rootID] = struct{}{}

	mutationState.RemoteFiles.LoadedRoots = append(mutationState.RemoteFiles.LoadedRoots, rootID)
	mutationState.RemoteFiles.CreatedFiles = append(mutationState.RemoteFiles.CreatedFiles, childIDs...)

	notify(EventRemoteFiles)
	mutationNotify(EventRemoteFiles, state, mutationState)
}

// FileCreated applies a push "created" event, or a direct local insertion
// (e.g. after a successful upload or mkdir).
func FileCreated(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, mountID vaultid.MountId, path vaultid.RemotePath, file remoteapi.FileEntry) {
	notify(EventRemoteFiles)

	parentPath, hasParent := vaultid.ParentPath(path)
	if !hasParent {
		return
	}

	EnsureDirs(state, notify, mutationState, mutationNotify, mountID, parentPath)

	parentID := GetFileID(mountID, parentPath)
	rf := remoteFileFromAPI(mountID, path, file)

	state.RemoteFiles.Files[rf.ID] = rf
	addChild(state, parentID, rf.ID)

	mutationState.RemoteFiles.CreatedFiles = append(mutationState.RemoteFiles.CreatedFiles, rf.ID)

	mutationNotify(EventRemoteFiles, state, mutationState)
}

// FileRemoved applies a push "removed" event or a local delete: removes the
// file and, transitively, all descendants.
func FileRemoved(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, mountID vaultid.MountId, path vaultid.RemotePath) {
	notify(EventRemoteFiles)

	fileID := GetFileID(mountID, path)

	if parentPath, ok := vaultid.ParentPath(path); ok {
		parentID := GetFileID(mountID, parentPath)
		removeChild(state, parentID, fileID)
	}

	CleanupFile(state, fileID)

	mutationState.RemoteFiles.RemovedFiles = append(mutationState.RemoteFiles.RemovedFiles, fileID)

	mutationNotify(EventRemoteFiles, state, mutationState)
}

// CleanupFile removes fileID along with everything rooted under it: (1)
// the id itself, (2) every id in files prefixed by fileID+"/", (3) every
// children entry under the same prefix.
func CleanupFile(state *State, fileID vaultid.RemoteFileId) {
	delete(state.RemoteFiles.Files, fileID)
	delete(state.RemoteFiles.LoadedRoots, fileID)

	prefix := string(fileID) + "/"

	for id := range state.RemoteFiles.Files {
		if hasPrefix(string(id), prefix) {
			delete(state.RemoteFiles.Files, id)
			delete(state.RemoteFiles.LoadedRoots, id)
		}
	}

	delete(state.RemoteFiles.Children, fileID)

	for id := range state.RemoteFiles.Children {
		if hasPrefix(string(id), prefix) {
			delete(state.RemoteFiles.Children, id)
		}
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// FileCopied applies a push "copied" event: inserts the new entry without
// touching the source.
func FileCopied(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, mountID vaultid.MountId, newPath vaultid.RemotePath, file remoteapi.FileEntry) {
	notify(EventRemoteFiles)

	newParentPath, ok := vaultid.ParentPath(newPath)
	if !ok {
		return
	}

	newParentID := GetFileID(mountID, newParentPath)
	newFile := remoteFileFromAPI(mountID, newPath, file)

	state.RemoteFiles.Files[newFile.ID] = newFile
	addChild(state, newParentID, newFile.ID)

	mutationState.RemoteFiles.CreatedFiles = append(mutationState.RemoteFiles.CreatedFiles, newFile.ID)

	mutationNotify(EventRemoteFiles, state, mutationState)
}

// FileMoved applies a push "moved" event or a local move/rename: recursively
// re-keys the moved subtree.
func FileMoved(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, mountID vaultid.MountId, oldPath, newPath vaultid.RemotePath, file remoteapi.FileEntry) {
	notify(EventRemoteFiles)

	oldFileID := GetFileID(mountID, oldPath)

	oldParentPath, ok := vaultid.ParentPath(oldPath)
	if !ok {
		return
	}

	oldParentID := GetFileID(mountID, oldParentPath)

	newParentPath, ok := vaultid.ParentPath(newPath)
	if !ok {
		return
	}

	EnsureDirs(state, notify, mutationState, mutationNotify, mountID, newParentPath)

	newParentID := GetFileID(mountID, newParentPath)
	newFileID := GetFileID(mountID, newPath)

	if _, existed := state.RemoteFiles.Files[oldFileID]; existed {
		delete(state.RemoteFiles.Files, oldFileID)
		changeParentPath(state, mutationState, oldFileID, newPath)
	}

	newFile := remoteFileFromAPI(mountID, newPath, file)
	state.RemoteFiles.Files[newFile.ID] = newFile

	removeChild(state, oldParentID, oldFileID)
	addChild(state, newParentID, newFile.ID)

	mutationState.RemoteFiles.MovedFiles = append(mutationState.RemoteFiles.MovedFiles, MovedFile{
		OldID: oldFileID,
		NewID: newFileID,
	})

	mutationNotify(EventRemoteFiles, state, mutationState)
}

// FileTagsUpdated applies a push "tags-updated" event: replaces the file
// entry in place (tags are part of the FileEntry payload) and re-adds it as
// a child in case it was not previously known.
func FileTagsUpdated(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, mountID vaultid.MountId, path vaultid.RemotePath, file remoteapi.FileEntry) {
	notify(EventRemoteFiles)

	rf := remoteFileFromAPI(mountID, path, file)
	state.RemoteFiles.Files[rf.ID] = rf

	if parentPath, ok := vaultid.ParentPath(path); ok {
		parentID := GetFileID(mountID, parentPath)
		addChild(state, parentID, rf.ID)
	}

	mutationState.RemoteFiles.TagsUpdated = append(mutationState.RemoteFiles.TagsUpdated, rf.ID)

	mutationNotify(EventRemoteFiles, state, mutationState)
}

// EnsureDirs synthesizes directory entries along path's ancestor chain
// where they are not yet known, so that the tree stays connected even when
// an event references a path whose ancestors were never loaded.
func EnsureDirs(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, mountID vaultid.MountId, path vaultid.RemotePath) {
	for _, ancestor := range vaultid.PathsChain(path) {
		ensureDir(state, notify, mutationState, mutationNotify, mountID, ancestor)
	}
}

func ensureDir(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, mountID vaultid.MountId, path vaultid.RemotePath) {
	fileID := GetFileID(mountID, path)
	if _, ok := state.RemoteFiles.Files[fileID]; ok {
		return
	}

	name, ok := vaultid.PathToName(path)
	if !ok {
		return
	}

	FileCreated(state, notify, mutationState, mutationNotify, mountID, path, remoteapi.FileEntry{
		Name: string(name),
		Type: "dir",
	})
}

// changeParentPath rewrites the path (and therefore id) of every descendant
// of fileID so that they are rooted at newPath, recursing depth-first and
// rebuilding the children list for every intermediate directory.
//
// A previous version of this logic allocated the rebuilt children slice
// but never appended to it, so a moved directory silently lost its
// children list. Here each recomputed child id is appended to newChildIDs
// before it replaces the old entry.
func changeParentPath(state *State, mutationState *MutationState, fileID vaultid.RemoteFileId, newPath vaultid.RemotePath) {
	oldChildIDs, ok := state.RemoteFiles.Children[fileID]
	if !ok {
		return
	}

	newChildIDs := make([]vaultid.RemoteFileId, 0, len(oldChildIDs))

	for _, oldChildID := range oldChildIDs {
		child, ok := state.RemoteFiles.Files[oldChildID]
		if !ok {
			continue
		}

		delete(state.RemoteFiles.Files, oldChildID)

		newChildPath := vaultid.JoinPathName(newPath, child.Name)
		newChildID := GetFileID(child.MountID, newChildPath)

		changeParentPath(state, mutationState, oldChildID, newChildPath)

		child.ID = newChildID
		child.Path = newChildPath

		state.RemoteFiles.Files[newChildID] = child
		newChildIDs = append(newChildIDs, newChildID)

		mutationState.RemoteFiles.MovedFiles = append(mutationState.RemoteFiles.MovedFiles, MovedFile{
			OldID: oldChildID,
			NewID: newChildID,
		})
	}

	sortChildren(state.RemoteFiles.Files, newChildIDs)

	delete(state.RemoteFiles.Children, fileID)

	if len(newChildIDs) > 0 {
		parentID := GetFileID(state.RemoteFiles.Files[newChildIDs[0]].MountID, newPath)
		state.RemoteFiles.Children[parentID] = newChildIDs
	}
}
