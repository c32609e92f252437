package vaultcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultengine/vaultengine/internal/remoteapi"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

func TestParseMountOrigin_KnownAndUnknown(t *testing.T) {
	assert.Equal(t, MountOrigin{Kind: OriginHosted}, ParseMountOrigin("hosted"))
	assert.Equal(t, MountOrigin{Kind: OriginOnedrive}, ParseMountOrigin("onedrive"))
	assert.Equal(t, MountOrigin{Kind: OriginOther, Other: "weird"}, ParseMountOrigin("weird"))
}

func TestParseMountType_DefaultsToDevice(t *testing.T) {
	assert.Equal(t, MountExport, ParseMountType("export"))
	assert.Equal(t, MountImport, ParseMountType("import"))
	assert.Equal(t, MountDevice, ParseMountType("whatever"))
	assert.Equal(t, MountDevice, ParseMountType(""))
}

func TestMountFromDTO_ConvertsFields(t *testing.T) {
	dto := remoteapi.MountDTO{
		ID:        "mount-1",
		Name:      "Laptop",
		Type:      "export",
		Origin:    "onedrive",
		Online:    true,
		IsPrimary: true,
	}

	m := MountFromDTO(dto)

	assert.Equal(t, vaultid.MountId("mount-1"), m.ID)
	assert.Equal(t, "Laptop", m.Name)
	assert.Equal(t, MountExport, m.Type)
	assert.Equal(t, MountOrigin{Kind: OriginOnedrive}, m.Origin)
	assert.True(t, m.Online)
	assert.True(t, m.IsPrimary)
}

func TestMountsLoaded_CreatesAndLowercasesName(t *testing.T) {
	s := NewStore(nil)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		MountsLoaded(state, notify, ms, mutationNotify, []Mount{
			{ID: "mount-1", Name: "Laptop"},
		})

		return nil
	})

	m := WithR(s, func(state *State) Mount {
		return state.Mounts.Mounts["mount-1"]
	})

	assert.Equal(t, "laptop", m.NameLower)
}

func TestMountsLoaded_OverwritesExistingOnReload(t *testing.T) {
	s := NewStore(nil)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		MountsLoaded(state, notify, ms, mutationNotify, []Mount{{ID: "mount-1", Name: "Laptop", Online: true}})

		return nil
	})

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		MountOnlineChanged(state, notify, ms, mutationNotify, "mount-1", false)

		return nil
	})

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		MountsLoaded(state, notify, ms, mutationNotify, []Mount{{ID: "mount-1", Name: "Laptop", Online: true}})

		return nil
	})

	online := WithR(s, func(state *State) bool {
		return state.Mounts.Mounts["mount-1"].Online
	})

	assert.True(t, online, "a fresh server-load merge overwrites the online flag back to whatever the load reported")
}

func TestMountOnlineChanged_IgnoresUnknownMount(t *testing.T) {
	s := NewStore(nil)

	require.NotPanics(t, func() {
		Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
			MountOnlineChanged(state, notify, ms, mutationNotify, "does-not-exist", true)

			return nil
		})
	})
}

func TestSortedMountIDs_OrdersByOriginRankThenName(t *testing.T) {
	s := NewStore(nil)

	Mutate(s, func(state *State, notify Notify, ms *MutationState, mutationNotify MutationNotify) any {
		MountsLoaded(state, notify, ms, mutationNotify, []Mount{
			{ID: "b", Name: "Zebra", Origin: MountOrigin{Kind: OriginDesktop}},
			{ID: "a", Name: "Alpha", Origin: MountOrigin{Kind: OriginHosted}},
			{ID: "c", Name: "apple", Origin: MountOrigin{Kind: OriginHosted}},
		})

		return nil
	})

	ids := WithR(s, func(state *State) []vaultid.MountId {
		return state.Mounts.SortedMountIDs()
	})

	require.Equal(t, []vaultid.MountId{"a", "c", "b"}, ids)
}
