// Package vaultid provides type-safe identifier types for the vault engine's
// data model. It consolidates normalization logic (case folding, path
// joining, id derivation) and gives compile-time safety over raw string
// usage, the way internal/driveid does for OneDrive drive identifiers.
package vaultid

import (
	"golang.org/x/text/cases"
)

// folder is a shared Unicode case folder, used in place of strings.ToLower
// so path and name comparisons fold the way the teacher's unicode/norm use
// handles non-ASCII quirks, rather than only ASCII bytes.
var folder = cases.Fold()

// Fold returns the Unicode case-folded form of s, for case-insensitive
// comparison and id derivation across the whole package.
func Fold(s string) string {
	return folder.String(s)
}

// MountId identifies a remote storage attachment (hosted, provider, or
// import/export endpoint).
type MountId string

// RepoId identifies an end-to-end encrypted vault rooted at a remote path.
type RepoId string

// RemotePath is a slash-delimited path as seen on the server, absolute from
// the mount root, with "/" as the root itself.
type RemotePath string

// EncryptedPath is a RemotePath whose segments are filename-encrypted.
type EncryptedPath string

// DecryptedPath is the plaintext path inside an unlocked repo.
type DecryptedPath string

// RemoteName is a single unencrypted path segment.
type RemoteName string

// RemoteNameLower is the case-folded form of a RemoteName, used for
// case-insensitive lookups.
type RemoteNameLower string

// EncryptedName is a single filename-encrypted path segment.
type EncryptedName string

// DecryptedName is a single plaintext path segment inside an unlocked repo.
type DecryptedName string

// RemoteFileId identifies a RemoteFile: H(mount_id, lower(path)).
type RemoteFileId string

// RepoFileId identifies a RepoFile: H(repo_id, lower(encrypted_path)).
type RepoFileId string

// Root is the path representing the mount or repo root.
const Root = RemotePath("/")

// DecryptedRoot is the decrypted-path equivalent of Root.
const DecryptedRoot = DecryptedPath("/")

// Lower returns the case-folded form of a RemotePath, used for
// case-insensitive lookup and id derivation.
func (p RemotePath) Lower() RemotePath {
	return RemotePath(Fold(string(p)))
}

// Lower returns the case-folded form of a DecryptedPath.
func (p DecryptedPath) Lower() DecryptedPath {
	return DecryptedPath(Fold(string(p)))
}

// String implementations for convenient logging with slog.
func (m MountId) String() string        { return string(m) }
func (r RepoId) String() string         { return string(r) }
func (p RemotePath) String() string     { return string(p) }
func (p EncryptedPath) String() string  { return string(p) }
func (p DecryptedPath) String() string  { return string(p) }
func (n RemoteName) String() string     { return string(n) }
func (n EncryptedName) String() string  { return string(n) }
func (n DecryptedName) String() string  { return string(n) }
func (id RemoteFileId) String() string  { return string(id) }
func (id RepoFileId) String() string    { return string(id) }
