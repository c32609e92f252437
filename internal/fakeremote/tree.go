package fakeremote

import (
	"fmt"
	"strings"

	"github.com/vaultengine/vaultengine/internal/remoteapi"
)

// lookup walks path from root, returning nil if any segment is missing.
// Caller holds m.mu.
func (m *mountState) lookup(path string) *node {
	if path == "" || path == "/" {
		return m.root
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	cur := m.root

	for _, seg := range segments {
		child, ok := cur.children[seg]
		if !ok {
			return nil
		}

		cur = child
	}

	return cur
}

func parentAndName(path string) (string, string) {
	trimmed := strings.Trim(path, "/")
	idx := strings.LastIndex(trimmed, "/")

	if idx < 0 {
		return "/", trimmed
	}

	return "/" + trimmed[:idx], trimmed[idx+1:]
}

// move relocates the node at fromPath to toPath, recursively fixing up
// every descendant's recorded path. Caller holds m.mu.
func (m *mountState) move(fromPath, toPath string) (*node, error) {
	n := m.lookup(fromPath)
	if n == nil {
		return nil, fmt.Errorf("fakeremote: %s not found", fromPath)
	}

	fromParentPath, fromName := parentAndName(fromPath)

	fromParent := m.lookup(fromParentPath)
	if fromParent == nil {
		return nil, fmt.Errorf("fakeremote: parent of %s not found", fromPath)
	}

	toParentPath, toName := parentAndName(toPath)

	toParent := m.lookup(toParentPath)
	if toParent == nil || toParent.entry.Type != "dir" {
		return nil, fmt.Errorf("fakeremote: destination parent %s not found", toParentPath)
	}

	delete(fromParent.children, fromName)

	n.entry.Name = toName
	reparent(n, toPath)
	toParent.children[toName] = n

	return n, nil
}

// reparent rewrites n's path and every descendant's path after a move.
func reparent(n *node, newPath string) {
	n.path = newPath

	for name, child := range n.children {
		reparent(child, joinPath(newPath, name))
	}
}

// copy duplicates the node at fromPath (recursively, for directories) to
// toPath. Caller holds m.mu.
func (m *mountState) copy(fromPath, toPath string, now int64) (*node, error) {
	n := m.lookup(fromPath)
	if n == nil {
		return nil, fmt.Errorf("fakeremote: %s not found", fromPath)
	}

	toParentPath, toName := parentAndName(toPath)

	toParent := m.lookup(toParentPath)
	if toParent == nil || toParent.entry.Type != "dir" {
		return nil, fmt.Errorf("fakeremote: destination parent %s not found", toParentPath)
	}

	dup := deepCopy(n, toPath, toName, now)
	toParent.children[toName] = dup

	return dup, nil
}

func deepCopy(n *node, newPath, newName string, now int64) *node {
	dup := &node{
		entry:   n.entry,
		path:    newPath,
		content: append([]byte(nil), n.content...),
	}
	dup.entry.Name = newName
	dup.entry.Modified = now

	if n.entry.Type == "dir" {
		dup.children = make(map[string]*node, len(n.children))
		for name, child := range n.children {
			dup.children[name] = deepCopy(child, joinPath(newPath, name), name, now)
		}
	}

	return dup
}

// remove deletes the node at path (recursively, for directories). Caller
// holds m.mu.
func (m *mountState) remove(path string) error {
	if path == "/" {
		return fmt.Errorf("fakeremote: cannot remove root")
	}

	parentPath, name := parentAndName(path)

	parent := m.lookup(parentPath)
	if parent == nil {
		return fmt.Errorf("fakeremote: parent of %s not found", path)
	}

	if _, ok := parent.children[name]; !ok {
		return fmt.Errorf("fakeremote: %s not found", path)
	}

	delete(parent.children, name)

	return nil
}

// upload creates or overwrites the file at path with body, creating
// intermediate directories implicitly the way the real remote's PUT
// content endpoint does. Caller holds m.mu.
func (m *mountState) upload(path string, body []byte, now int64) (remoteapi.FileEntry, error) {
	parentPath, name := parentAndName(path)

	parent := m.ensureDir(parentPath, now)

	existing, exists := parent.children[name]

	n := &node{
		path:    path,
		content: body,
	}
	n.entry.Name = name
	n.entry.Type = "file"
	n.entry.Size = int64(len(body))
	n.entry.Modified = now

	if exists && existing.entry.Type == "dir" {
		return remoteapi.FileEntry{}, fmt.Errorf("fakeremote: %s is a directory", path)
	}

	parent.children[name] = n

	return n.entry, nil
}

// ensureDir walks/creates every path segment as a directory, mirroring how
// a real object-storage-backed remote materializes parent directories
// implicitly on first write. Caller holds m.mu.
func (m *mountState) ensureDir(path string, now int64) *node {
	if path == "" || path == "/" {
		return m.root
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	cur := m.root
	cumPath := "/"

	for _, seg := range segments {
		cumPath = joinPath(cumPath, seg)

		child, ok := cur.children[seg]
		if !ok || child.entry.Type != "dir" {
			child = newDir(cumPath, seg, now)
			cur.children[seg] = child
		}

		cur = child
	}

	return cur
}
