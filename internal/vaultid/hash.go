package vaultid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FileID derives a RemoteFileId from a mount and a lowercased remote path:
// H(mount_id, lower(path)).
func FileID(mountID MountId, lowerPath RemotePath) RemoteFileId {
	return RemoteFileId(digest(string(mountID), string(lowerPath)))
}

// RepoFileID derives a RepoFileId from a repo and a lowercased encrypted
// path: H(repo_id, lower(encrypted_path)).
func RepoFileID(repoID RepoId, lowerEncryptedPath EncryptedPath) RepoFileId {
	return RepoFileId(digest(string(repoID), string(lowerEncryptedPath)))
}

// UniqueID derives the content-version fingerprint used for cache
// invalidation and conflict detection:
// H(mount_id, lower(path), size, modified, hash). unique_id changes if and
// only if any of (size, modified, hash) changes for the same path.
func UniqueID(mountID MountId, lowerPath RemotePath, size, modified *int64, hash *string) string {
	sizeStr := "-"
	if size != nil {
		sizeStr = fmt.Sprintf("%d", *size)
	}

	modStr := "-"
	if modified != nil {
		modStr = fmt.Sprintf("%d", *modified)
	}

	hashStr := "-"
	if hash != nil {
		hashStr = *hash
	}

	return digest(string(mountID), string(lowerPath), sizeStr, modStr, hashStr)
}

func digest(parts ...string) string {
	h := sha256.New()

	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
