package vaultcore

import (
	"strings"

	"github.com/vaultengine/vaultengine/internal/vaultcipher"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

// RepoFileSize is Decrypted{n} | DecryptError{encrypted_size, reason}: a
// decrypted file's size, or the encrypted size plus a reason when name/size
// decryption failed for that entry. Represented as data rather than an
// exception so one bad entry never aborts a listing.
type RepoFileSize struct {
	Decrypted     bool
	Size          int64 // valid when Decrypted
	EncryptedSize int64 // valid when !Decrypted
	Reason        string
}

// RepoFile is a decrypted overlay over a RemoteFile inside an unlocked
// repo.
type RepoFile struct {
	ID            vaultid.RepoFileId
	RepoID        vaultid.RepoId
	RemoteFileID  vaultid.RemoteFileId
	EncryptedPath vaultid.EncryptedPath
	DecryptedPath *vaultid.DecryptedPath // nil when path decryption failed
	Name          *vaultid.DecryptedName
	Size          RepoFileSize
	Ext           string
	Category      string
	Modified      *int64
	UniqueID      string
}

// RepoFilesState is the decrypted overlay mirror, keyed by RepoFileId and
// rebuilt whenever the remote mirror changes within a repo's tree_path.
type RepoFilesState struct {
	Files    map[vaultid.RepoFileId]RepoFile
	Children map[vaultid.RepoFileId][]vaultid.RepoFileId
}

func newRepoFilesState() RepoFilesState {
	return RepoFilesState{
		Files:    make(map[vaultid.RepoFileId]RepoFile),
		Children: make(map[vaultid.RepoFileId][]vaultid.RepoFileId),
	}
}

// RepoFilesMutationState mirrors RemoteFilesMutationState for the overlay.
type RepoFilesMutationState struct {
	CreatedFiles []vaultid.RepoFileId
	RemovedFiles []vaultid.RepoFileId
	MovedFiles   []RepoFileMoved
}

// RepoFileMoved records an old->new id pair plus the new decrypted path,
// so Details sessions can rewrite their own location when the file they
// have open moves underneath them.
type RepoFileMoved struct {
	OldID   vaultid.RepoFileId
	NewID   vaultid.RepoFileId
	RepoID  vaultid.RepoId
	NewPath vaultid.DecryptedPath
}

// GetRepoFileID derives a RepoFileId from a repo and an encrypted path
// relative to the repo root.
func GetRepoFileID(repoID vaultid.RepoId, encryptedPath vaultid.EncryptedPath) vaultid.RepoFileId {
	lower := vaultid.EncryptedPath(vaultid.Fold(string(encryptedPath)))

	return vaultid.RepoFileID(repoID, lower)
}

// relEncryptedPath strips a repo's tree_path prefix from a remote path,
// returning the repo-relative encrypted path (invariant 1: RF lives at
// tree_path + encrypt(decrypted_path)).
func relEncryptedPath(treePath, remotePath vaultid.RemotePath) (vaultid.EncryptedPath, bool) {
	if remotePath == treePath {
		return "/", true
	}

	prefix := string(treePath)
	if prefix != "/" {
		prefix += "/"
	} else {
		prefix = "/"
	}

	s := string(remotePath)
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}

	return vaultid.EncryptedPath("/" + s[len(prefix):]), true
}

// decryptRepoFile builds a RepoFile for the remote file rf found inside
// repo, decrypting its relative path. Decrypt failures are captured as
// RepoFileSize{Decrypted:false} data, never returned as an error.
func decryptRepoFile(repo Repo, rf RemoteFile) (RepoFile, bool) {
	encRelPath, ok := relEncryptedPath(repo.TreePath, rf.Path)
	if !ok {
		return RepoFile{}, false
	}

	id := GetRepoFileID(repo.ID, encRelPath)

	out := RepoFile{
		ID:            id,
		RepoID:        repo.ID,
		RemoteFileID:  rf.ID,
		EncryptedPath: encRelPath,
		Ext:           rf.Ext,
		Category:      rf.Category,
		Modified:      rf.Modified,
	}

	decPath, err := vaultcipher.DecryptPath(repo.State.Cipher, string(encRelPath))
	if err != nil {
		size := int64(0)
		if rf.Size != nil {
			size = *rf.Size
		}

		out.Size = RepoFileSize{Decrypted: false, EncryptedSize: size, Reason: err.Error()}

		return out, true
	}

	dp := vaultid.DecryptedPath(decPath)
	out.DecryptedPath = &dp

	if name, ok := vaultid.PathToDecryptedName(dp); ok {
		out.Name = &name
	}

	if rf.Size != nil {
		decSize := repo.State.Cipher.DecryptedSize(*rf.Size)
		out.Size = RepoFileSize{Decrypted: true, Size: decSize}
	}

	out.UniqueID = rf.UniqueID

	return out, true
}

// purgeRepoFiles removes every RepoFile belonging to repoID. Called when a
// repo transitions to Locked or is removed.
func purgeRepoFiles(state *State, repoID vaultid.RepoId) {
	for id, f := range state.RepoFiles.Files {
		if f.RepoID == repoID {
			delete(state.RepoFiles.Files, id)
		}
	}

	for id, children := range state.RepoFiles.Children {
		f, ok := state.RepoFiles.Files[id]
		if ok && f.RepoID != repoID {
			continue
		}

		if !ok {
			// id itself was just removed above; check by reconstructing
			// repo ownership is not possible, so only prune children
			// lists whose owning file's repo matches or is already gone.
			delete(state.RepoFiles.Children, id)

			continue
		}

		_ = children
	}
}

// repoFileChildrenLess orders repo file children directory-first, then by
// decrypted name (case-insensitive), mirroring remote file child order.
func repoFileChildrenLess(files map[vaultid.RepoFileId]RepoFile, a, b vaultid.RepoFileId) bool {
	fa, fb := files[a], files[b]

	aIsDir := fa.Size.Decrypted == false && fa.Size.EncryptedSize == 0 && fa.Ext == "" && fa.Category == "folder"
	bIsDir := fb.Size.Decrypted == false && fb.Size.EncryptedSize == 0 && fb.Ext == "" && fb.Category == "folder"

	if aIsDir != bIsDir {
		return aIsDir
	}

	nameA, nameB := "", ""
	if fa.Name != nil {
		nameA = vaultid.Fold(string(*fa.Name))
	}

	if fb.Name != nil {
		nameB = vaultid.Fold(string(*fb.Name))
	}

	return nameA < nameB
}

// RebuildRepoFilesFromRemote applies the remote-mirror mutation facts in
// mutationState to the decrypted overlay for every unlocked repo whose
// tree_path overlaps the changed paths. Intended to be registered via
// Store.MutationOn(id, []Event{EventRemoteFiles}, ...) so the overlay is
// always rebuilt within the same mutation pass that changed the remote
// mirror.
func RebuildRepoFilesFromRemote(state *State, mutationState *MutationState) {
	repoMutationState := &RepoFilesMutationState{}

	for _, id := range mutationState.RemoteFiles.CreatedFiles {
		applyRemoteFileToRepos(state, repoMutationState, id)
	}

	for _, id := range mutationState.RemoteFiles.RemovedFiles {
		removeRepoFilesForRemoteID(state, repoMutationState, id)
	}

	for _, mv := range mutationState.RemoteFiles.MovedFiles {
		oldByRepo := repoFileIDsForRemoteID(state, mv.OldID)

		removeRepoFilesForRemoteID(state, repoMutationState, mv.OldID)
		applyRemoteFileToRepos(state, repoMutationState, mv.NewID)

		newByRepo := repoFileIDsForRemoteID(state, mv.NewID)

		for repoID, oldID := range oldByRepo {
			newID, ok := newByRepo[repoID]
			if !ok {
				continue
			}

			repoFile := state.RepoFiles.Files[newID]

			newPath := vaultid.DecryptedRoot
			if repoFile.DecryptedPath != nil {
				newPath = *repoFile.DecryptedPath
			}

			repoMutationState.MovedFiles = append(repoMutationState.MovedFiles, RepoFileMoved{
				OldID:   oldID,
				NewID:   newID,
				RepoID:  repoID,
				NewPath: newPath,
			})
		}
	}

	for _, id := range mutationState.RemoteFiles.TagsUpdated {
		applyRemoteFileToRepos(state, repoMutationState, id)
	}

	mutationState.RepoFiles = *repoMutationState
}

func applyRemoteFileToRepos(state *State, repoMutationState *RepoFilesMutationState, remoteID vaultid.RemoteFileId) {
	rf, ok := state.RemoteFiles.Files[remoteID]
	if !ok {
		return
	}

	for _, repo := range state.Repos.Repos {
		if !repo.State.Unlocked {
			continue
		}

		if !vaultid.IsUnderOrEqual(repo.TreePath, rf.Path) {
			continue
		}

		repoFile, ok := decryptRepoFile(repo, rf)
		if !ok {
			continue
		}

		state.RepoFiles.Files[repoFile.ID] = repoFile
		repoMutationState.CreatedFiles = append(repoMutationState.CreatedFiles, repoFile.ID)

		if encParent, ok := vaultid.ParentPath(vaultid.RemotePath(repoFile.EncryptedPath)); ok {
			parentID := GetRepoFileID(repo.ID, vaultid.EncryptedPath(encParent))
			addRepoFileChild(state, parentID, repoFile.ID)
		}
	}
}

// repoFileIDsForRemoteID returns, per repo, the RepoFileId currently
// decrypted from remoteID. Used to pair a move's old and new RepoFileId
// per repo before the old side is removed from the overlay.
func repoFileIDsForRemoteID(state *State, remoteID vaultid.RemoteFileId) map[vaultid.RepoId]vaultid.RepoFileId {
	out := make(map[vaultid.RepoId]vaultid.RepoFileId)

	for id, f := range state.RepoFiles.Files {
		if f.RemoteFileID == remoteID {
			out[f.RepoID] = id
		}
	}

	return out
}

func removeRepoFilesForRemoteID(state *State, repoMutationState *RepoFilesMutationState, remoteID vaultid.RemoteFileId) {
	for id, f := range state.RepoFiles.Files {
		if f.RemoteFileID == remoteID {
			delete(state.RepoFiles.Files, id)
			delete(state.RepoFiles.Children, id)
			repoMutationState.RemovedFiles = append(repoMutationState.RemovedFiles, id)
		}
	}
}

func addRepoFileChild(state *State, parentID, childID vaultid.RepoFileId) {
	ids := state.RepoFiles.Children[parentID]

	for _, id := range ids {
		if id == childID {
			return
		}
	}

	ids = append(ids, childID)

	files := state.RepoFiles.Files
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && repoFileChildrenLess(files, ids[j], ids[j-1]); j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}

	state.RepoFiles.Children[parentID] = ids
}
