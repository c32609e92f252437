package vaultcore

import (
	"sort"
	"strings"

	"github.com/vaultengine/vaultengine/internal/remoteapi"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

// RemoteFileType is Dir or File, with Dir sorting before File.
type RemoteFileType int

const (
	RemoteFileDir RemoteFileType = iota
	RemoteFileFile
)

// RemoteFile is an unencrypted-name entry as seen on the server.
type RemoteFile struct {
	ID        vaultid.RemoteFileId
	MountID   vaultid.MountId
	Path      vaultid.RemotePath
	Name      vaultid.RemoteName
	NameLower vaultid.RemoteNameLower
	Ext       string
	Type      RemoteFileType
	Size      *int64
	Modified  *int64
	Hash      *string
	Tags      map[string][]string
	Category  string
	UniqueID  string
}

// RemoteFilesState mirrors the server directory tree.
type RemoteFilesState struct {
	Files       map[vaultid.RemoteFileId]RemoteFile
	Children    map[vaultid.RemoteFileId][]vaultid.RemoteFileId
	LoadedRoots map[vaultid.RemoteFileId]struct{}
}

func newRemoteFilesState() RemoteFilesState {
	return RemoteFilesState{
		Files:       make(map[vaultid.RemoteFileId]RemoteFile),
		Children:    make(map[vaultid.RemoteFileId][]vaultid.RemoteFileId),
		LoadedRoots: make(map[vaultid.RemoteFileId]struct{}),
	}
}

// RemoteFilesMutationState accumulates the facts of one mutation pass for
// listeners, e.g. the repo files mirror rebuild.
type RemoteFilesMutationState struct {
	LoadedRoots  []vaultid.RemoteFileId
	CreatedFiles []vaultid.RemoteFileId
	RemovedFiles []vaultid.RemoteFileId
	MovedFiles   []MovedFile
	TagsUpdated  []vaultid.RemoteFileId
}

// MovedFile records an old->new id pair for a moved RemoteFile.
type MovedFile struct {
	OldID vaultid.RemoteFileId
	NewID vaultid.RemoteFileId
}

// GetFileID derives a RemoteFile's id from its mount and path.
func GetFileID(mountID vaultid.MountId, path vaultid.RemotePath) vaultid.RemoteFileId {
	return vaultid.FileID(mountID, path.Lower())
}

func buildUniqueID(mountID vaultid.MountId, path vaultid.RemotePath, size, modified *int64, hash *string) string {
	return vaultid.UniqueID(mountID, path.Lower(), size, modified, hash)
}

// childrenLess orders children directories-first, then by lowercased name.
func childrenLess(a, b RemoteFile) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}

	return vaultid.Fold(string(a.NameLower)) < vaultid.Fold(string(b.NameLower))
}

// sortChildren reorders ids in place per childrenLess, looking entries up
// in files. Unknown ids sort last and stable among themselves.
func sortChildren(files map[vaultid.RemoteFileId]RemoteFile, ids []vaultid.RemoteFileId) {
	sort.SliceStable(ids, func(i, j int) bool {
		fi, iok := files[ids[i]]
		fj, jok := files[ids[j]]

		if !iok || !jok {
			return iok && !jok
		}

		return childrenLess(fi, fj)
	})
}

// addChild inserts childID into parentID's children list if absent, keeping
// the list sorted and free of duplicates.
func addChild(state *State, parentID, childID vaultid.RemoteFileId) {
	ids := state.RemoteFiles.Children[parentID]

	for _, id := range ids {
		if id == childID {
			sortChildren(state.RemoteFiles.Files, ids)
			state.RemoteFiles.Children[parentID] = ids

			return
		}
	}

	ids = append(ids, childID)
	sortChildren(state.RemoteFiles.Files, ids)
	state.RemoteFiles.Children[parentID] = ids
}

// removeChild removes childID from parentID's children list, if present.
func removeChild(state *State, parentID, childID vaultid.RemoteFileId) {
	ids, ok := state.RemoteFiles.Children[parentID]
	if !ok {
		return
	}

	out := ids[:0]

	for _, id := range ids {
		if id != childID {
			out = append(out, id)
		}
	}

	state.RemoteFiles.Children[parentID] = out
}

// remoteFileFromAPI converts a remoteapi listing entry into a RemoteFile at
// path, computing ext/category/unique_id.
func remoteFileFromAPI(mountID vaultid.MountId, path vaultid.RemotePath, f remoteapi.FileEntry) RemoteFile {
	id := GetFileID(mountID, path)
	name, _ := vaultid.PathToName(path)

	typ := RemoteFileFile
	if f.Type == "dir" {
		typ = RemoteFileDir
	}

	var size, modified *int64

	var hash *string

	ext, category := "", "folder"

	if typ == RemoteFileFile {
		s := f.Size
		size = &s
		m := f.Modified
		modified = &m

		if f.Hash != "" {
			h := f.Hash
			hash = &h
		}

		ext, category = extCategory(string(name))
	}

	return RemoteFile{
		ID:        id,
		MountID:   mountID,
		Path:      path,
		Name:      name,
		NameLower: vaultid.RemoteNameLower(vaultid.Fold(string(name))),
		Ext:       ext,
		Type:      typ,
		Size:      size,
		Modified:  modified,
		Hash:      hash,
		Tags:      f.Tags,
		Category:  category,
		UniqueID:  buildUniqueID(mountID, path, size, modified, hash),
	}
}

// extCategory is a minimal MIME/category lookup stand-in; a full MIME
// database is an external collaborator out of scope here, but this is
// enough for ext-based load filters and browser display.
func extCategory(name string) (ext, category string) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return "", "generic"
	}

	ext = vaultid.Fold(name[idx+1:])

	switch ext {
	case "jpg", "jpeg", "png", "gif", "webp":
		category = "image"
	case "mp4", "mov", "mkv", "webm":
		category = "video"
	case "mp3", "flac", "wav", "ogg":
		category = "audio"
	case "txt", "md", "log":
		category = "text"
	case "pdf":
		category = "document"
	default:
		category = "generic"
	}

	return ext, category
}
