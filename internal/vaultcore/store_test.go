package vaultcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultengine/vaultengine/internal/vaultid"
)

func TestStore_GetNextID_Monotonic(t *testing.T) {
	s := NewStore(nil)

	a := s.GetNextID()
	b := s.GetNextID()
	c := s.GetNextID()

	assert.Less(t, a, b)
	assert.Less(t, b, c)
}

func TestStore_Mutate_FiresNotifyListenersAfterUnlock(t *testing.T) {
	s := NewStore(nil)

	var fired []Event

	id := s.GetNextID()
	s.On(id, []Event{EventMounts, EventRepos}, func() {
		fired = append(fired, EventMounts)
	})

	Mutate(s, func(_ *State, notify Notify, _ *MutationState, _ MutationNotify) any {
		notify(EventRepos)
		notify(EventMounts)

		return nil
	})

	// The listener subscribes to both fired events, so it is called once
	// per event.
	require.Len(t, fired, 2)
	assert.Equal(t, EventMounts, fired[0])
}

func TestStore_Mutate_EventsFireInDeclarationOrderNotNotifyOrder(t *testing.T) {
	s := NewStore(nil)

	var order []Event

	id := s.GetNextID()
	s.On(id, []Event{EventMounts, EventRepos}, func() {})

	mountsID := s.GetNextID()
	s.On(mountsID, []Event{EventMounts}, func() { order = append(order, EventMounts) })

	reposID := s.GetNextID()
	s.On(reposID, []Event{EventRepos}, func() { order = append(order, EventRepos) })

	Mutate(s, func(_ *State, notify Notify, _ *MutationState, _ MutationNotify) any {
		notify(EventRepos)
		notify(EventMounts)

		return nil
	})

	require.Len(t, order, 2)
	assert.Equal(t, EventMounts, order[0])
	assert.Equal(t, EventRepos, order[1])
}

func TestStore_Mutate_ListenersFireInRegistrationOrder(t *testing.T) {
	s := NewStore(nil)

	var order []string

	firstID := s.GetNextID()
	s.On(firstID, []Event{EventMounts}, func() { order = append(order, "first") })

	secondID := s.GetNextID()
	s.On(secondID, []Event{EventMounts}, func() { order = append(order, "second") })

	Mutate(s, func(_ *State, notify Notify, _ *MutationState, _ MutationNotify) any {
		notify(EventMounts)

		return nil
	})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestStore_MutationOn_RunsDuringMutationBeforeNotify(t *testing.T) {
	s := NewStore(nil)

	var notifyFired bool

	mutID := s.GetNextID()
	s.MutationOn(mutID, []Event{EventRemoteFiles}, func(state *State, ms *MutationState) {
		state.Mounts.Mounts = map[vaultid.MountId]Mount{}
		ms.RemoteFiles.CreatedFiles = append(ms.RemoteFiles.CreatedFiles, "seen-during-mutation")
	})

	onID := s.GetNextID()
	s.On(onID, []Event{EventRemoteFiles}, func() { notifyFired = true })

	var capturedIDs []vaultid.RemoteFileId

	Mutate(s, func(_ *State, _ Notify, ms *MutationState, mutationNotify MutationNotify) any {
		mutationNotify(EventRemoteFiles, &s.state, ms)
		capturedIDs = append([]vaultid.RemoteFileId(nil), ms.RemoteFiles.CreatedFiles...)

		return nil
	})

	assert.True(t, notifyFired)
	require.Len(t, capturedIDs, 1)
	assert.Equal(t, vaultid.RemoteFileId("seen-during-mutation"), capturedIDs[0])
}

func TestStore_RemoveListener_StopsFutureNotifications(t *testing.T) {
	s := NewStore(nil)

	var fireCount int

	id := s.GetNextID()
	s.On(id, []Event{EventMounts}, func() { fireCount++ })

	Mutate(s, func(_ *State, notify Notify, _ *MutationState, _ MutationNotify) any {
		notify(EventMounts)

		return nil
	})

	s.RemoveListener(id)

	Mutate(s, func(_ *State, notify Notify, _ *MutationState, _ MutationNotify) any {
		notify(EventMounts)

		return nil
	})

	assert.Equal(t, 1, fireCount)
}

func TestStore_WithR_ReadsCurrentState(t *testing.T) {
	s := NewStore(nil)

	Mutate(s, func(state *State, notify Notify, _ *MutationState, _ MutationNotify) any {
		state.Mounts.Mounts = map[vaultid.MountId]Mount{
			"mount-1": {ID: "mount-1", Name: "laptop"},
		}
		notify(EventMounts)

		return nil
	})

	name := WithR(s, func(state *State) string {
		return state.Mounts.Mounts["mount-1"].Name
	})

	assert.Equal(t, "laptop", name)
}
