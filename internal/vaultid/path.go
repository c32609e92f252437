package vaultid

import "strings"

// JoinPathName appends name as a new final segment of parent. parent must
// not have a trailing slash except for the root "/".
func JoinPathName(parent RemotePath, name RemoteName) RemotePath {
	if parent == Root {
		return RemotePath("/" + string(name))
	}

	return RemotePath(string(parent) + "/" + string(name))
}

// JoinDecryptedPathName is the DecryptedPath analogue of JoinPathName.
func JoinDecryptedPathName(parent DecryptedPath, name DecryptedName) DecryptedPath {
	if parent == DecryptedRoot {
		return DecryptedPath("/" + string(name))
	}

	return DecryptedPath(string(parent) + "/" + string(name))
}

// ParentPath returns the parent of path, or ("", false) if path is the root
// (the root has no parent).
func ParentPath(path RemotePath) (RemotePath, bool) {
	s := string(path)
	if s == "/" {
		return "", false
	}

	idx := strings.LastIndex(s, "/")
	if idx <= 0 {
		return Root, true
	}

	return RemotePath(s[:idx]), true
}

// ParentDecryptedPath is the DecryptedPath analogue of ParentPath.
func ParentDecryptedPath(path DecryptedPath) (DecryptedPath, bool) {
	s := string(path)
	if s == "/" {
		return "", false
	}

	idx := strings.LastIndex(s, "/")
	if idx <= 0 {
		return DecryptedRoot, true
	}

	return DecryptedPath(s[:idx]), true
}

// PathToName returns the final path segment, or ("", false) for the root.
func PathToName(path RemotePath) (RemoteName, bool) {
	s := string(path)
	if s == "/" || s == "" {
		return "", false
	}

	idx := strings.LastIndex(s, "/")

	return RemoteName(s[idx+1:]), true
}

// PathToDecryptedName is the DecryptedPath analogue of PathToName.
func PathToDecryptedName(path DecryptedPath) (DecryptedName, bool) {
	s := string(path)
	if s == "/" || s == "" {
		return "", false
	}

	idx := strings.LastIndex(s, "/")

	return DecryptedName(s[idx+1:]), true
}

// PathsChain returns every ancestor path of path, root-first, including path
// itself but excluding the root. Used by ensure_dirs to synthesize
// intermediate directories along a chain.
func PathsChain(path RemotePath) []RemotePath {
	if path == Root {
		return nil
	}

	segments := strings.Split(strings.TrimPrefix(string(path), "/"), "/")

	chain := make([]RemotePath, 0, len(segments))
	cur := ""

	for _, seg := range segments {
		cur += "/" + seg
		chain = append(chain, RemotePath(cur))
	}

	return chain
}

// IsUnderOrEqual reports whether path is child equal to or a descendant of
// root. Root "/" is a prefix of every path.
func IsUnderOrEqual(root, path RemotePath) bool {
	if root == Root {
		return true
	}

	return path == root || strings.HasPrefix(string(path), string(root)+"/")
}
