package vaultcore

import (
	"sort"
	"strings"

	"github.com/vaultengine/vaultengine/internal/vaultcipher"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

// RepoFilesSortField is the field a browser sorts its listing by.
type RepoFilesSortField int

const (
	SortByName RepoFilesSortField = iota
	SortBySize
	SortByModified
)

// BrowserLoadStatus is the raw loading status of a browser's current
// directory, before RepoLocked/RepoNotFound are layered on top as derived
// status.
type BrowserLoadStatus int

const (
	BrowserInitial BrowserLoadStatus = iota
	BrowserLoading
	BrowserLoadDone
	BrowserError
)

// BrowserStatus is the fully derived status a host UI renders: either the
// raw load status, or one of the two states that preempt it regardless of
// load progress.
type BrowserStatus int

const (
	BrowserStatusInitial BrowserStatus = iota
	BrowserStatusLoading
	BrowserStatusLoaded
	BrowserStatusError
	BrowserStatusRepoLocked
	BrowserStatusRepoNotFound
)

// RepoFilesBrowser is one open directory-listing session (one per host UI
// view), keyed by its own id so the same repo/path can be open in several
// views at once.
type RepoFilesBrowser struct {
	ID         uint32
	RepoID     vaultid.RepoId
	Path       vaultid.DecryptedPath
	LoadStatus BrowserLoadStatus
	LoadError  error
	// Loaded is set the first time a load succeeds and is never cleared,
	// so a host UI can tell a first-load spinner (Loaded == false) apart
	// from a background refresh over stale data (Loaded == true).
	Loaded bool
	Sort       RepoFilesSortField
	SortDesc   bool
	Selected   map[vaultid.RepoFileId]struct{}
	FileIDs    []vaultid.RepoFileId // sorted, selection-aware, recomputed on every RepoFiles change
}

// RepoFilesBrowsersState holds every open browser session.
type RepoFilesBrowsersState struct {
	Browsers map[uint32]RepoFilesBrowser
}

func newRepoFilesBrowsersState() RepoFilesBrowsersState {
	return RepoFilesBrowsersState{Browsers: make(map[uint32]RepoFilesBrowser)}
}

// CreateBrowser opens a new browser session at path within repoID.
func CreateBrowser(store *Store, repoID vaultid.RepoId, path vaultid.DecryptedPath) uint32 {
	id := store.GetNextID()

	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		state.RepoFilesBrowsers.Browsers[id] = RepoFilesBrowser{
			ID:       id,
			RepoID:   repoID,
			Path:     path,
			Selected: make(map[vaultid.RepoFileId]struct{}),
		}

		recomputeBrowserFileIDs(state, id)

		notify(EventRepoFilesBrowsers)

		return nil
	})

	return id
}

// DestroyBrowser closes a browser session.
func DestroyBrowser(store *Store, id uint32) {
	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		delete(state.RepoFilesBrowsers.Browsers, id)

		notify(EventRepoFilesBrowsers)

		return nil
	})
}

// BrowserLoadStarted marks a browser's directory load in flight.
func BrowserLoadStarted(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, id uint32) {
	b, ok := state.RepoFilesBrowsers.Browsers[id]
	if !ok {
		return
	}

	b.LoadStatus = BrowserLoading

	b.LoadError = nil
	state.RepoFilesBrowsers.Browsers[id] = b

	notify(EventRepoFilesBrowsers)
}

// BrowserLoaded marks a browser's directory load as finished, successfully
// or not.
func BrowserLoaded(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, id uint32, err error) {
	b, ok := state.RepoFilesBrowsers.Browsers[id]
	if !ok {
		return
	}

	if err != nil {
		b.LoadStatus = BrowserError
		b.LoadError = err
	} else {
		b.LoadStatus = BrowserLoadDone
		b.LoadError = nil
		b.Loaded = true
	}

	state.RepoFilesBrowsers.Browsers[id] = b

	recomputeBrowserFileIDs(state, id)

	notify(EventRepoFilesBrowsers)
}

// SetBrowserSort changes the sort field/direction and recomputes FileIDs.
func SetBrowserSort(store *Store, id uint32, field RepoFilesSortField, desc bool) {
	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		b, ok := state.RepoFilesBrowsers.Browsers[id]
		if !ok {
			return nil
		}

		b.Sort = field
		b.SortDesc = desc
		state.RepoFilesBrowsers.Browsers[id] = b

		recomputeBrowserFileIDs(state, id)

		notify(EventRepoFilesBrowsers)

		return nil
	})
}

// SelectFile toggles selection of fileID within browser id.
func SelectFile(store *Store, id uint32, fileID vaultid.RepoFileId, selected bool) {
	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		b, ok := state.RepoFilesBrowsers.Browsers[id]
		if !ok {
			return nil
		}

		if selected {
			b.Selected[fileID] = struct{}{}
		} else {
			delete(b.Selected, fileID)
		}

		state.RepoFilesBrowsers.Browsers[id] = b

		notify(EventRepoFilesBrowsers)

		return nil
	})
}

// ClearSelection empties the selection set of browser id.
func ClearSelection(store *Store, id uint32) {
	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		b, ok := state.RepoFilesBrowsers.Browsers[id]
		if !ok {
			return nil
		}

		b.Selected = make(map[vaultid.RepoFileId]struct{})
		state.RepoFilesBrowsers.Browsers[id] = b

		notify(EventRepoFilesBrowsers)

		return nil
	})
}

// recomputeBrowserFileIDs rebuilds the sorted FileIDs list for browser id
// from the current RepoFiles overlay, pruning any selected ids that no
// longer exist. Called whenever RepoFiles or the browser's own sort/path
// settings change.
func recomputeBrowserFileIDs(state *State, id uint32) {
	b, ok := state.RepoFilesBrowsers.Browsers[id]
	if !ok {
		return
	}

	parentID := GetRepoFileID(b.RepoID, encryptedPathForBrowserPath(state, b))

	ids := append([]vaultid.RepoFileId(nil), state.RepoFiles.Children[parentID]...)

	sortBrowserFileIDs(state, ids, b.Sort, b.SortDesc)

	b.FileIDs = ids

	for fileID := range b.Selected {
		if _, ok := state.RepoFiles.Files[fileID]; !ok {
			delete(b.Selected, fileID)
		}
	}

	state.RepoFilesBrowsers.Browsers[id] = b
}

// encryptedPathForBrowserPath resolves a browser's decrypted path to the
// repo-relative encrypted path needed to look up RepoFiles.Children,
// re-encrypting through the repo's cipher when unlocked.
func encryptedPathForBrowserPath(state *State, b RepoFilesBrowser) vaultid.EncryptedPath {
	repo, ok := state.Repos.Repos[b.RepoID]
	if !ok || !repo.State.Unlocked {
		return ""
	}

	if b.Path == vaultid.DecryptedRoot {
		return "/"
	}

	enc, err := vaultcipher.EncryptPath(repo.State.Cipher, string(b.Path))
	if err != nil {
		return ""
	}

	return vaultid.EncryptedPath(enc)
}

func sortBrowserFileIDs(state *State, ids []vaultid.RepoFileId, field RepoFilesSortField, desc bool) {
	less := func(i, j int) bool {
		fi, fj := state.RepoFiles.Files[ids[i]], state.RepoFiles.Files[ids[j]]

		var result bool

		switch field {
		case SortBySize:
			result = repoFileSizeValue(fi) < repoFileSizeValue(fj)
		case SortByModified:
			result = modifiedValue(fi) < modifiedValue(fj)
		default:
			result = strings.ToLower(nameValue(fi)) < strings.ToLower(nameValue(fj))
		}

		if desc {
			return !result
		}

		return result
	}

	sort.SliceStable(ids, less)
}

func repoFileSizeValue(f RepoFile) int64 {
	if f.Size.Decrypted {
		return f.Size.Size
	}

	return f.Size.EncryptedSize
}

func modifiedValue(f RepoFile) int64 {
	if f.Modified != nil {
		return *f.Modified
	}

	return 0
}

func nameValue(f RepoFile) string {
	if f.Name != nil {
		return string(*f.Name)
	}

	return string(f.EncryptedPath)
}

// RepoFilesBreadcrumb is one segment of a decrypted path's breadcrumb trail.
type RepoFilesBreadcrumb struct {
	Path vaultid.DecryptedPath
	Name string
	Last bool
}

// Breadcrumbs computes the breadcrumb trail for a decrypted path, one entry
// per path segment, root first.
func Breadcrumbs(path vaultid.DecryptedPath) []RepoFilesBreadcrumb {
	if path == vaultid.DecryptedRoot {
		return []RepoFilesBreadcrumb{{Path: vaultid.DecryptedRoot, Name: "", Last: true}}
	}

	segments := strings.Split(strings.TrimPrefix(string(path), "/"), "/")

	crumbs := make([]RepoFilesBreadcrumb, 0, len(segments)+1)
	crumbs = append(crumbs, RepoFilesBreadcrumb{Path: vaultid.DecryptedRoot, Name: ""})

	cur := ""
	for i, seg := range segments {
		cur += "/" + seg
		crumbs = append(crumbs, RepoFilesBreadcrumb{
			Path: vaultid.DecryptedPath(cur),
			Name: seg,
			Last: i == len(segments)-1,
		})
	}

	return crumbs
}

// RepoFilesBrowserInfo is the full derived-info projection a browser's host
// UI consumes.
type RepoFilesBrowserInfo struct {
	Status             BrowserStatus
	// Loaded reports whether a prior successful load has been observed,
	// letting a host UI distinguish a first-load spinner from a
	// background refresh over stale data while Status is Loading/Error.
	Loaded             bool
	Title              string
	TotalCount         int
	TotalSize          int64
	SelectedCount      int
	SelectedSize       int64
	SelectedFile       *RepoFile // only set when exactly one item is selected
	CanDownloadSelected bool
	CanCopySelected     bool
	CanMoveSelected     bool
	CanDeleteSelected   bool
	Breadcrumbs         []RepoFilesBreadcrumb
}

// BrowserInfo computes the full derived-info projection for browser id.
func BrowserInfo(state *State, id uint32) RepoFilesBrowserInfo {
	b, ok := state.RepoFilesBrowsers.Browsers[id]
	if !ok {
		return RepoFilesBrowserInfo{}
	}

	info := RepoFilesBrowserInfo{
		Breadcrumbs: Breadcrumbs(b.Path),
		Loaded:      b.Loaded,
	}

	repo, repoOK := state.Repos.Repos[b.RepoID]

	switch {
	case !repoOK:
		info.Status = BrowserStatusRepoNotFound

		return info
	case !repo.State.Unlocked:
		info.Status = BrowserStatusRepoLocked

		return info
	}

	switch b.LoadStatus {
	case BrowserInitial:
		info.Status = BrowserStatusInitial
	case BrowserLoading:
		info.Status = BrowserStatusLoading
	case BrowserError:
		info.Status = BrowserStatusError
	default:
		info.Status = BrowserStatusLoaded
	}

	name, _ := vaultid.PathToDecryptedName(b.Path)
	info.Title = string(name)

	for _, id := range b.FileIDs {
		f, ok := state.RepoFiles.Files[id]
		if !ok {
			continue
		}

		info.TotalCount++
		info.TotalSize += repoFileSizeValue(f)
	}

	for id := range b.Selected {
		f, ok := state.RepoFiles.Files[id]
		if !ok {
			continue
		}

		info.SelectedCount++
		info.SelectedSize += repoFileSizeValue(f)
	}

	if info.SelectedCount == 1 {
		for id := range b.Selected {
			f := state.RepoFiles.Files[id]
			info.SelectedFile = &f
		}
	}

	info.CanDownloadSelected = info.SelectedCount > 0
	info.CanCopySelected = info.SelectedCount > 0
	info.CanMoveSelected = info.SelectedCount > 0
	info.CanDeleteSelected = info.SelectedCount > 0

	return info
}
