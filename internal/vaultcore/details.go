package vaultcore

import (
	"time"

	"github.com/vaultengine/vaultengine/internal/vaultcipher"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

// DetailsContentStatus is the Initial->Loading/Reloading->Loaded/Error
// content state machine for one open file.
type DetailsContentStatus int

const (
	DetailsInitial DetailsContentStatus = iota
	DetailsLoading
	DetailsReloading
	DetailsLoaded
	DetailsContentError
)

// SaveInitiator distinguishes why a save was requested, governing the
// conflict/autosave policy distinction: a User save always proceeds and
// always surfaces conflicts; an Autosave save is silently skipped when it
// cannot prove there is no conflict; a Cancel discards the edit instead of
// saving.
type SaveInitiator int

const (
	SaveByUser SaveInitiator = iota
	SaveByAutosave
	SaveByCancel
)

// RepoFilesDetails is one open file-editing session.
type RepoFilesDetails struct {
	ID            uint32
	RepoID        vaultid.RepoId
	Path          vaultid.DecryptedPath
	ContentStatus DetailsContentStatus
	LoadError     error
	IsEditing     bool

	Content []byte
	Version uint64 // incremented on every SetContent call that changes the content
	IsDirty bool

	// Captured at load time, used for conflict detection on save: if the
	// corresponding RemoteFile's unique_id has changed since, someone else
	// modified the file underneath this session.
	LoadedUniqueID string
	LoadedModified *int64
	LoadedSize     *int64

	Saving       bool
	SaveError    error
	AutosaveAt   time.Time
}

// RepoFilesDetailsState holds every open details session.
type RepoFilesDetailsState struct {
	Sessions map[uint32]RepoFilesDetails
}

func newRepoFilesDetailsState() RepoFilesDetailsState {
	return RepoFilesDetailsState{Sessions: make(map[uint32]RepoFilesDetails)}
}

// CreateDetails opens a new details session for path within repoID.
func CreateDetails(store *Store, repoID vaultid.RepoId, path vaultid.DecryptedPath) uint32 {
	id := store.GetNextID()

	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		state.RepoFilesDetails.Sessions[id] = RepoFilesDetails{
			ID:     id,
			RepoID: repoID,
			Path:   path,
		}

		notify(EventRepoFilesDetails)

		return nil
	})

	return id
}

// DestroyDetails closes a details session, discarding any unsaved edit.
func DestroyDetails(store *Store, id uint32) {
	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		delete(state.RepoFilesDetails.Sessions, id)

		notify(EventRepoFilesDetails)

		return nil
	})
}

// DetailsLoadStarted marks a details session's content load in flight,
// as Reloading if content was already loaded before, Loading otherwise.
func DetailsLoadStarted(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, id uint32) {
	d, ok := state.RepoFilesDetails.Sessions[id]
	if !ok {
		return
	}

	if d.ContentStatus == DetailsLoaded {
		d.ContentStatus = DetailsReloading
	} else {
		d.ContentStatus = DetailsLoading
	}

	d.LoadError = nil
	state.RepoFilesDetails.Sessions[id] = d

	notify(EventRepoFilesDetails)
}

// DetailsContentLoaded records a successful (or failed) content load,
// capturing the remote file's fingerprint at load time for later conflict
// detection on save.
func DetailsContentLoaded(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, id uint32, content []byte, remoteFile *RemoteFile, err error) {
	d, ok := state.RepoFilesDetails.Sessions[id]
	if !ok {
		return
	}

	if err != nil {
		d.ContentStatus = DetailsContentError
		d.LoadError = err
		state.RepoFilesDetails.Sessions[id] = d

		notify(EventRepoFilesDetails)

		return
	}

	d.ContentStatus = DetailsLoaded
	d.Content = content
	d.Version = 0
	d.IsDirty = false

	if remoteFile != nil {
		d.LoadedUniqueID = remoteFile.UniqueID
		d.LoadedModified = remoteFile.Modified
		d.LoadedSize = remoteFile.Size
	}

	state.RepoFilesDetails.Sessions[id] = d

	notify(EventRepoFilesDetails)
}

// SetContent replaces the in-memory edit buffer, bumping Version and
// marking the session dirty whenever content actually differs.
func SetContent(store *Store, id uint32, content []byte) {
	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		d, ok := state.RepoFilesDetails.Sessions[id]
		if !ok {
			return nil
		}

		if string(d.Content) == string(content) {
			return nil
		}

		d.Content = content
		d.Version++
		d.IsDirty = true
		state.RepoFilesDetails.Sessions[id] = d

		notify(EventRepoFilesDetails)

		return nil
	})
}

// Edit begins an editing session, allowing subsequent SetContent calls.
func Edit(store *Store, id uint32) {
	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		d, ok := state.RepoFilesDetails.Sessions[id]
		if !ok {
			return nil
		}

		d.IsEditing = true
		state.RepoFilesDetails.Sessions[id] = d

		notify(EventRepoFilesDetails)

		return nil
	})
}

// EditCancel ends an editing session. If discarded, the in-memory edit is
// dropped and content resets to Initial so the next interaction reloads
// fresh bytes from the remote instead of showing stale local edits.
func EditCancel(store *Store, id uint32, discarded bool) {
	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		d, ok := state.RepoFilesDetails.Sessions[id]
		if !ok {
			return nil
		}

		d.IsEditing = false
		d.IsDirty = false

		if discarded {
			d.ContentStatus = DetailsInitial
			d.Content = nil
			d.Version = 0
		}

		state.RepoFilesDetails.Sessions[id] = d

		notify(EventRepoFilesDetails)

		return nil
	})
}

// ConflictReason explains why a save cannot proceed without the caller
// resolving a conflict.
type ConflictReason int

const (
	NoConflict ConflictReason = iota
	ConflictRemoteChanged
	ConflictNoInfo // no unique id to compare; modified/size changed, so autosave cannot assume safety
)

// CheckConflict compares the session's captured load-time fingerprint
// against the current RemoteFile for the file, if any.
func CheckConflict(state *State, id uint32) ConflictReason {
	d, ok := state.RepoFilesDetails.Sessions[id]
	if !ok {
		return NoConflict
	}

	repo, ok := state.Repos.Repos[d.RepoID]
	if !ok || !repo.State.Unlocked {
		return NoConflict
	}

	rf, ok := remoteFileForDetails(state, repo, d)
	if !ok {
		return NoConflict
	}

	if rf.UniqueID == "" || d.LoadedUniqueID == "" {
		// No unique id to compare: treat as "no conflict info" and fall back
		// to comparing modified/size, the autosave-safe approximation.
		modifiedChanged := !int64PtrEqual(rf.Modified, d.LoadedModified)
		sizeChanged := !int64PtrEqual(rf.Size, d.LoadedSize)

		if modifiedChanged || sizeChanged {
			return ConflictNoInfo
		}

		return NoConflict
	}

	if rf.UniqueID != d.LoadedUniqueID {
		return ConflictRemoteChanged
	}

	return NoConflict
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

func remoteFileForDetails(state *State, repo Repo, d RepoFilesDetails) (RemoteFile, bool) {
	encPath, err := encryptDetailsPath(repo, d.Path)
	if err != nil {
		return RemoteFile{}, false
	}

	remotePath := vaultid.RemotePath(string(repo.TreePath) + encPath)
	rf, ok := state.RemoteFiles.Files[GetFileID(repo.MountID, remotePath)]

	return rf, ok
}

// detailsFileDeleted reports whether the file a details session has open
// was present at load time and has since vanished from the remote mirror,
// the other half of the autosave refusal guard alongside CheckConflict.
func detailsFileDeleted(state *State, d RepoFilesDetails) bool {
	if d.LoadedUniqueID == "" {
		return false
	}

	repo, ok := state.Repos.Repos[d.RepoID]
	if !ok || !repo.State.Unlocked {
		return false
	}

	_, exists := remoteFileForDetails(state, repo, d)

	return !exists
}

// CanAutosave reports whether an autosave-initiated save is currently
// permitted: the session must be dirty, not mid-save, and free of any
// conflict or deletion the autosave policy cannot safely ignore.
func CanAutosave(state *State, id uint32) bool {
	d, ok := state.RepoFilesDetails.Sessions[id]
	if !ok || !d.IsDirty || d.Saving {
		return false
	}

	return CheckConflict(state, id) == NoConflict && !detailsFileDeleted(state, d)
}

// SaveStarted marks the session as mid-save for initiator, and reports
// whether the save actually started. A User-initiated save always
// proceeds (a conflict is instead surfaced as a save error); an
// Autosave-initiated save refuses to start when a conflict is detected or
// the file was deleted underneath the session.
func SaveStarted(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, id uint32, initiator SaveInitiator) bool {
	d, ok := state.RepoFilesDetails.Sessions[id]
	if !ok {
		return false
	}

	if initiator == SaveByAutosave {
		if CheckConflict(state, id) != NoConflict || detailsFileDeleted(state, d) {
			return false
		}
	}

	d.Saving = true
	d.SaveError = nil
	state.RepoFilesDetails.Sessions[id] = d

	notify(EventRepoFilesDetails)

	return true
}

// SaveFinished records the outcome of a save attempt, clearing IsDirty on
// success.
func SaveFinished(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, id uint32, savedVersion uint64, err error) {
	d, ok := state.RepoFilesDetails.Sessions[id]
	if !ok {
		return
	}

	d.Saving = false

	if err != nil {
		d.SaveError = err
		state.RepoFilesDetails.Sessions[id] = d

		notify(EventRepoFilesDetails)

		return
	}

	// Only clear dirty if nothing changed underneath this save (the user
	// may have kept typing while the save was in flight).
	if d.Version == savedVersion {
		d.IsDirty = false
	}

	d.SaveError = nil
	d.AutosaveAt = startedAtFor(0)
	state.RepoFilesDetails.Sessions[id] = d

	notify(EventRepoFilesDetails)
}

// RewriteMovedDetailsPaths rewrites any open Details session whose current
// path resolves to the old side of a move recorded in
// mutationState.RepoFiles.MovedFiles, so an editing session stays pointed
// at the file's new location instead of going stale underneath the user.
// Intended to be registered via Store.MutationOn(id,
// []Event{EventRemoteFiles}, ...) after the listener that populates
// RepoFiles.MovedFiles (RebuildRepoFilesFromRemote), so it observes the
// same mutation pass.
func RewriteMovedDetailsPaths(state *State, mutationState *MutationState) {
	for _, mv := range mutationState.RepoFiles.MovedFiles {
		for id, d := range state.RepoFilesDetails.Sessions {
			if d.RepoID != mv.RepoID {
				continue
			}

			repo, ok := state.Repos.Repos[d.RepoID]
			if !ok || !repo.State.Unlocked {
				continue
			}

			encPath, err := encryptDetailsPath(repo, d.Path)
			if err != nil {
				continue
			}

			if GetRepoFileID(d.RepoID, vaultid.EncryptedPath(encPath)) != mv.OldID {
				continue
			}

			d.Path = mv.NewPath
			state.RepoFilesDetails.Sessions[id] = d
		}
	}
}

// encryptDetailsPath encrypts a details session's decrypted path relative
// to the repo root.
func encryptDetailsPath(repo Repo, path vaultid.DecryptedPath) (string, error) {
	if path == vaultid.DecryptedRoot {
		return "", nil
	}

	return vaultcipher.EncryptPath(repo.State.Cipher, string(path))
}

// RepoFilesDetailsInfo is the full derived-info projection a details
// session's host UI consumes.
type RepoFilesDetailsInfo struct {
	FileName  string
	FileExt   string
	FileExists bool
	CanSave   bool
	CanDownload bool
	CanCopy   bool
	CanMove   bool
	CanDelete bool
	Error     string
}

// DetailsInfo computes the full derived-info projection for session id.
func DetailsInfo(state *State, id uint32) RepoFilesDetailsInfo {
	d, ok := state.RepoFilesDetails.Sessions[id]
	if !ok {
		return RepoFilesDetailsInfo{}
	}

	var info RepoFilesDetailsInfo

	name, _ := vaultid.PathToDecryptedName(d.Path)
	info.FileName = string(name)

	repo, repoOK := state.Repos.Repos[d.RepoID]
	if repoOK && repo.State.Unlocked {
		if _, ok := remoteFileForDetails(state, repo, d); ok {
			info.FileExists = true
		}
	}

	info.CanSave = d.IsDirty && !d.Saving
	info.CanDownload = info.FileExists
	info.CanCopy = info.FileExists
	info.CanMove = info.FileExists
	info.CanDelete = info.FileExists

	if d.LoadError != nil {
		info.Error = d.LoadError.Error()
	} else if d.SaveError != nil {
		info.Error = d.SaveError.Error()
	}

	return info
}
