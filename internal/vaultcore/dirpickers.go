package vaultcore

import (
	"sort"
	"strings"

	"github.com/vaultengine/vaultengine/internal/vaultid"
)

// DirPickerNodeStatus is a lazily-expanded tree node's load state: a node
// starts Unloaded (children unknown), becomes Loading once expanded, then
// Loaded or Error. Mirrors how a directory scanner only walks a subtree once
// something asks for it, rather than eagerly indexing the whole tree.
type DirPickerNodeStatus int

const (
	DirPickerNodeUnloaded DirPickerNodeStatus = iota
	DirPickerNodeLoading
	DirPickerNodeLoaded
	DirPickerNodeError
)

// DirPickerNode is one row of a lazy directory tree, keyed by its decrypted
// path inside the picker's repo.
type DirPickerNode struct {
	Path       vaultid.DecryptedPath
	Name       string
	Status     DirPickerNodeStatus
	Error      error
	Expanded   bool
	ChildPaths []vaultid.DecryptedPath // valid once Status == DirPickerNodeLoaded
}

// DirPicker is one open move/copy/create-target tree-selection session.
type DirPicker struct {
	ID           uint32
	RepoID       vaultid.RepoId
	Nodes        map[vaultid.DecryptedPath]DirPickerNode
	SelectedPath *vaultid.DecryptedPath
	// ExcludedSubtree prevents selecting a file's own original location or
	// any path beneath it, used when moving a directory so it cannot be
	// dropped inside itself.
	ExcludedSubtree *vaultid.DecryptedPath
}

// DirPickersState holds every open dir-picker session.
type DirPickersState struct {
	Pickers map[uint32]DirPicker
}

func newDirPickersState() DirPickersState {
	return DirPickersState{Pickers: make(map[uint32]DirPicker)}
}

// CreateDirPicker opens a new picker rooted at the repo root, with
// excludedSubtree (if non-nil) barred from selection.
func CreateDirPicker(store *Store, repoID vaultid.RepoId, excludedSubtree *vaultid.DecryptedPath) uint32 {
	id := store.GetNextID()

	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		state.DirPickers.Pickers[id] = DirPicker{
			ID:              id,
			RepoID:          repoID,
			Nodes:           map[vaultid.DecryptedPath]DirPickerNode{vaultid.DecryptedRoot: {Path: vaultid.DecryptedRoot, Status: DirPickerNodeUnloaded}},
			ExcludedSubtree: excludedSubtree,
		}

		notify(EventDirPickers)

		return nil
	})

	return id
}

// DestroyDirPicker closes a picker session.
func DestroyDirPicker(store *Store, id uint32) {
	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		delete(state.DirPickers.Pickers, id)

		notify(EventDirPickers)

		return nil
	})
}

// DirPickerExpandStarted marks path within picker id as expanded and
// loading, creating the node if it does not exist yet. Returns false if the
// picker is missing, or the node is already loaded or loading (it is still
// marked expanded), so the caller knows not to issue a redundant directory
// listing.
func DirPickerExpandStarted(store *Store, id uint32, path vaultid.DecryptedPath) bool {
	return Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) bool {
		p, ok := state.DirPickers.Pickers[id]
		if !ok {
			return false
		}

		n, ok := p.Nodes[path]
		if !ok {
			n = DirPickerNode{Path: path}
		}

		if n.Status == DirPickerNodeLoading || n.Status == DirPickerNodeLoaded {
			n.Expanded = true
			p.Nodes[path] = n
			state.DirPickers.Pickers[id] = p

			notify(EventDirPickers)

			return false
		}

		n.Status = DirPickerNodeLoading
		n.Expanded = true
		n.Error = nil
		p.Nodes[path] = n
		state.DirPickers.Pickers[id] = p

		notify(EventDirPickers)

		return true
	})
}

// DirPickerExpanded records the result of listing path's children: either
// the child directory names found, or the error that occurred.
func DirPickerExpanded(store *Store, id uint32, path vaultid.DecryptedPath, childNames []string, err error) {
	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		p, ok := state.DirPickers.Pickers[id]
		if !ok {
			return nil
		}

		n, ok := p.Nodes[path]
		if !ok {
			n = DirPickerNode{Path: path}
		}

		if err != nil {
			n.Status = DirPickerNodeError
			n.Error = err
			p.Nodes[path] = n
			state.DirPickers.Pickers[id] = p

			notify(EventDirPickers)

			return nil
		}

		sorted := append([]string(nil), childNames...)
		sort.Slice(sorted, func(i, j int) bool {
			return strings.ToLower(sorted[i]) < strings.ToLower(sorted[j])
		})

		childPaths := make([]vaultid.DecryptedPath, 0, len(sorted))

		for _, name := range sorted {
			childPath := vaultid.JoinDecryptedPathName(path, vaultid.DecryptedName(name))
			childPaths = append(childPaths, childPath)

			if _, exists := p.Nodes[childPath]; !exists {
				p.Nodes[childPath] = DirPickerNode{Path: childPath, Name: name, Status: DirPickerNodeUnloaded}
			}
		}

		n.Status = DirPickerNodeLoaded
		n.Error = nil
		n.ChildPaths = childPaths
		p.Nodes[path] = n

		state.DirPickers.Pickers[id] = p

		notify(EventDirPickers)

		return nil
	})
}

// CollapseDirPickerNode marks path as not expanded, without discarding its
// already-loaded children (re-expanding is then instant).
func CollapseDirPickerNode(store *Store, id uint32, path vaultid.DecryptedPath) {
	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		p, ok := state.DirPickers.Pickers[id]
		if !ok {
			return nil
		}

		n, ok := p.Nodes[path]
		if !ok {
			return nil
		}

		n.Expanded = false
		p.Nodes[path] = n
		state.DirPickers.Pickers[id] = p

		notify(EventDirPickers)

		return nil
	})
}

// SelectDirPickerPath sets the picker's current selection, refusing any
// path at or under ExcludedSubtree.
func SelectDirPickerPath(store *Store, id uint32, path vaultid.DecryptedPath) bool {
	return Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) bool {
		p, ok := state.DirPickers.Pickers[id]
		if !ok {
			return false
		}

		if p.ExcludedSubtree != nil && isUnderOrEqualDecrypted(*p.ExcludedSubtree, path) {
			return false
		}

		sel := path
		p.SelectedPath = &sel
		state.DirPickers.Pickers[id] = p

		notify(EventDirPickers)

		return true
	})
}

func isUnderOrEqualDecrypted(root, path vaultid.DecryptedPath) bool {
	if root == vaultid.DecryptedRoot {
		return true
	}

	if path == root {
		return true
	}

	return strings.HasPrefix(string(path), string(root)+"/")
}

// DirPickerNodeInfo is the per-row projection a host UI tree view renders.
type DirPickerNodeInfo struct {
	Path     vaultid.DecryptedPath
	Name     string
	Status   DirPickerNodeStatus
	Expanded bool
	Selected bool
	Disabled bool // true when excluded by ExcludedSubtree
	Children []vaultid.DecryptedPath
}

// DirPickerInfo computes the full ordered row list currently visible:
// depth-first, only descending into expanded nodes, root first.
func DirPickerInfo(state *State, id uint32) []DirPickerNodeInfo {
	p, ok := state.DirPickers.Pickers[id]
	if !ok {
		return nil
	}

	var rows []DirPickerNodeInfo

	var walk func(path vaultid.DecryptedPath)

	walk = func(path vaultid.DecryptedPath) {
		n, ok := p.Nodes[path]
		if !ok {
			return
		}

		name := n.Name
		if path == vaultid.DecryptedRoot {
			name = ""
		}

		disabled := p.ExcludedSubtree != nil && isUnderOrEqualDecrypted(*p.ExcludedSubtree, path)

		rows = append(rows, DirPickerNodeInfo{
			Path:     path,
			Name:     name,
			Status:   n.Status,
			Expanded: n.Expanded,
			Selected: p.SelectedPath != nil && *p.SelectedPath == path,
			Disabled: disabled,
			Children: n.ChildPaths,
		})

		if n.Expanded {
			for _, child := range n.ChildPaths {
				walk(child)
			}
		}
	}

	walk(vaultid.DecryptedRoot)

	return rows
}
