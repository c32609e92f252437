package vaultcore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultengine/vaultengine/internal/vaultid"
)

func TestDirPickerExpandStarted_FirstCallReturnsTrueSecondFalse(t *testing.T) {
	s := NewStore(nil)

	id := CreateDirPicker(s, "repo-1", nil)

	first := DirPickerExpandStarted(s, id, vaultid.DecryptedRoot)
	assert.True(t, first, "a fresh unloaded node should start loading")

	second := DirPickerExpandStarted(s, id, vaultid.DecryptedRoot)
	assert.False(t, second, "a node already loading must not trigger a second listing")
}

func TestDirPickerExpanded_SortsChildrenCaseInsensitively(t *testing.T) {
	s := NewStore(nil)

	id := CreateDirPicker(s, "repo-1", nil)
	DirPickerExpandStarted(s, id, vaultid.DecryptedRoot)
	DirPickerExpanded(s, id, vaultid.DecryptedRoot, []string{"Zebra", "apple", "Mango"}, nil)

	rootNode := WithR(s, func(state *State) DirPickerNode {
		return state.DirPickers.Pickers[id].Nodes[vaultid.DecryptedRoot]
	})

	require.Equal(t, DirPickerNodeLoaded, rootNode.Status)
	require.Len(t, rootNode.ChildPaths, 3)
	assert.Equal(t, vaultid.DecryptedPath("/apple"), rootNode.ChildPaths[0])
	assert.Equal(t, vaultid.DecryptedPath("/Mango"), rootNode.ChildPaths[1])
	assert.Equal(t, vaultid.DecryptedPath("/Zebra"), rootNode.ChildPaths[2])
}

func TestDirPickerExpanded_RecordsErrorWithoutChildren(t *testing.T) {
	s := NewStore(nil)

	id := CreateDirPicker(s, "repo-1", nil)
	wantErr := errors.New("listing failed")
	DirPickerExpanded(s, id, vaultid.DecryptedRoot, nil, wantErr)

	node := WithR(s, func(state *State) DirPickerNode {
		return state.DirPickers.Pickers[id].Nodes[vaultid.DecryptedRoot]
	})

	assert.Equal(t, DirPickerNodeError, node.Status)
	assert.ErrorIs(t, node.Error, wantErr)
}

func TestSelectDirPickerPath_RefusesExcludedSubtree(t *testing.T) {
	s := NewStore(nil)

	excluded := vaultid.DecryptedPath("/moving-me")
	id := CreateDirPicker(s, "repo-1", &excluded)

	ok := SelectDirPickerPath(s, id, "/moving-me/nested")
	assert.False(t, ok, "selecting inside the excluded subtree must be refused")

	ok = SelectDirPickerPath(s, id, "/elsewhere")
	assert.True(t, ok)

	selected := WithR(s, func(state *State) *vaultid.DecryptedPath {
		return state.DirPickers.Pickers[id].SelectedPath
	})

	require.NotNil(t, selected)
	assert.Equal(t, vaultid.DecryptedPath("/elsewhere"), *selected)
}

func TestCollapseDirPickerNode_KeepsLoadedChildrenForInstantReExpand(t *testing.T) {
	s := NewStore(nil)

	id := CreateDirPicker(s, "repo-1", nil)
	DirPickerExpandStarted(s, id, vaultid.DecryptedRoot)
	DirPickerExpanded(s, id, vaultid.DecryptedRoot, []string{"docs"}, nil)

	CollapseDirPickerNode(s, id, vaultid.DecryptedRoot)

	node := WithR(s, func(state *State) DirPickerNode {
		return state.DirPickers.Pickers[id].Nodes[vaultid.DecryptedRoot]
	})

	assert.False(t, node.Expanded)
	assert.Equal(t, DirPickerNodeLoaded, node.Status)
	require.Len(t, node.ChildPaths, 1)
}

func TestDirPickerInfo_WalksOnlyExpandedNodesDepthFirst(t *testing.T) {
	s := NewStore(nil)

	id := CreateDirPicker(s, "repo-1", nil)
	DirPickerExpandStarted(s, id, vaultid.DecryptedRoot)
	DirPickerExpanded(s, id, vaultid.DecryptedRoot, []string{"docs", "pics"}, nil)

	rows := WithR(s, func(state *State) []DirPickerNodeInfo {
		return DirPickerInfo(state, id)
	})

	require.Len(t, rows, 3) // root + docs + pics, none expanded further
	assert.Equal(t, vaultid.DecryptedRoot, rows[0].Path)
	assert.Equal(t, vaultid.DecryptedPath("/docs"), rows[1].Path)
	assert.Equal(t, vaultid.DecryptedPath("/pics"), rows[2].Path)

	// Expanding and loading "docs" walks into it: its child row follows it
	// directly, before "pics".
	DirPickerExpandStarted(s, id, "/docs")
	DirPickerExpanded(s, id, "/docs", []string{"nested"}, nil)

	rows = WithR(s, func(state *State) []DirPickerNodeInfo {
		return DirPickerInfo(state, id)
	})

	require.Len(t, rows, 4)
	assert.Equal(t, vaultid.DecryptedPath("/docs/nested"), rows[2].Path)
}

func TestDestroyDirPicker_RemovesSession(t *testing.T) {
	s := NewStore(nil)

	id := CreateDirPicker(s, "repo-1", nil)
	DestroyDirPicker(s, id)

	exists := WithR(s, func(state *State) bool {
		_, ok := state.DirPickers.Pickers[id]

		return ok
	})

	assert.False(t, exists)
}
