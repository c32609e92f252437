package vaultcore

import (
	"sort"
	"strings"

	"github.com/vaultengine/vaultengine/internal/remoteapi"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

// MountType is the attachment kind of a Mount.
type MountType int

const (
	MountDevice MountType = iota
	MountExport
	MountImport
)

// MountOrigin is the provider a Mount is backed by, used for sort order.
type MountOrigin struct {
	Kind  MountOriginKind
	Other string // populated only when Kind == MountOriginOther
}

type MountOriginKind int

const (
	OriginHosted MountOriginKind = iota
	OriginDesktop
	OriginDropbox
	OriginGoogledrive
	OriginOnedrive
	OriginShare
	OriginOther
)

// Rank returns the sort order for this origin: origin-rank, then name.
func (o MountOrigin) Rank() int {
	return int(o.Kind)
}

func ParseMountOrigin(s string) MountOrigin {
	switch s {
	case "hosted":
		return MountOrigin{Kind: OriginHosted}
	case "desktop":
		return MountOrigin{Kind: OriginDesktop}
	case "dropbox":
		return MountOrigin{Kind: OriginDropbox}
	case "googledrive":
		return MountOrigin{Kind: OriginGoogledrive}
	case "onedrive":
		return MountOrigin{Kind: OriginOnedrive}
	case "share":
		return MountOrigin{Kind: OriginShare}
	default:
		return MountOrigin{Kind: OriginOther, Other: s}
	}
}

// Mount is a remote storage attachment.
type Mount struct {
	ID        vaultid.MountId
	Name      string
	NameLower string
	Type      MountType
	Origin    MountOrigin
	Online    bool
	IsPrimary bool
}

// MountsState holds all known mounts, created on server load and never
// deleted; `online` may toggle.
type MountsState struct {
	Mounts map[vaultid.MountId]Mount
}

// SortedMountIDs returns mount ids ordered by (origin-rank asc, name asc).
func (s *MountsState) SortedMountIDs() []vaultid.MountId {
	ids := make([]vaultid.MountId, 0, len(s.Mounts))
	for id := range s.Mounts {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		a, b := s.Mounts[ids[i]], s.Mounts[ids[j]]

		if a.Origin.Rank() != b.Origin.Rank() {
			return a.Origin.Rank() < b.Origin.Rank()
		}

		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})

	return ids
}

// ParseMountType maps the wire string of a MountDTO.Type to a MountType,
// defaulting to MountDevice for anything unrecognized.
func ParseMountType(s string) MountType {
	switch s {
	case "export":
		return MountExport
	case "import":
		return MountImport
	default:
		return MountDevice
	}
}

// MountFromDTO converts one remoteapi.MountDTO, as returned by the server's
// mount-load response, into a Mount ready for MountsLoaded.
func MountFromDTO(dto remoteapi.MountDTO) Mount {
	return Mount{
		ID:        vaultid.MountId(dto.ID),
		Name:      dto.Name,
		Type:      ParseMountType(dto.Type),
		Origin:    ParseMountOrigin(dto.Origin),
		Online:    dto.Online,
		IsPrimary: dto.IsPrimary,
	}
}

// MountsLoaded merges in a full server load of mounts: every loaded mount is
// stored as loaded, creating or overwriting its entry, and mounts absent
// from the load are left in place.
func MountsLoaded(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, mounts []Mount) {
	if state.Mounts.Mounts == nil {
		state.Mounts.Mounts = make(map[vaultid.MountId]Mount)
	}

	for _, m := range mounts {
		m.NameLower = strings.ToLower(m.Name)
		state.Mounts.Mounts[m.ID] = m
	}

	mutationNotify(EventMounts, state, mutationState)
}

// MountOnlineChanged toggles a mount's online flag.
func MountOnlineChanged(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify, id vaultid.MountId, online bool) {
	m, ok := state.Mounts.Mounts[id]
	if !ok {
		return
	}

	m.Online = online
	state.Mounts.Mounts[id] = m

	mutationNotify(EventMounts, state, mutationState)
}
