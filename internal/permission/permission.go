// Package permission defines the closed permission sets for hubs and channels
// and the tri-state setting used for per-member overrides.
package permission

// HubPermission is a hub-wide permission.
type HubPermission string

// Hub permissions. All implies every other hub permission.
const (
	HubAll            HubPermission = "all"
	HubReadChannels   HubPermission = "read_channels"
	HubWriteChannels  HubPermission = "write_channels"
	HubConfigure      HubPermission = "configure"
	HubManageChannels HubPermission = "manage_channels"
	HubMute           HubPermission = "mute"
	HubUnmute         HubPermission = "unmute"
	HubKick           HubPermission = "kick"
	HubBan            HubPermission = "ban"
	HubUnban          HubPermission = "unban"
	HubAdministrate   HubPermission = "administrate"
)

// ChannelPermission is a permission scoped to a single channel.
type ChannelPermission string

// Channel permissions.
const (
	ChannelRead   ChannelPermission = "read"
	ChannelWrite  ChannelPermission = "write"
	ChannelManage ChannelPermission = "manage"
)

// hubEquivalent maps each channel permission to the hub-wide permission that
// grants it across all channels.
var hubEquivalent = map[ChannelPermission]HubPermission{
	ChannelRead:   HubReadChannels,
	ChannelWrite:  HubWriteChannels,
	ChannelManage: HubManageChannels,
}

// HubEquivalent returns the hub-wide permission that implies the given channel
// permission in every channel.
func (p ChannelPermission) HubEquivalent() HubPermission {
	return hubEquivalent[p]
}

// ValidHub reports whether the string names a known hub permission.
func ValidHub(p HubPermission) bool {
	switch p {
	case HubAll, HubReadChannels, HubWriteChannels, HubConfigure, HubManageChannels,
		HubMute, HubUnmute, HubKick, HubBan, HubUnban, HubAdministrate:
		return true
	}
	return false
}

// ValidChannel reports whether the string names a known channel permission.
func ValidChannel(p ChannelPermission) bool {
	switch p {
	case ChannelRead, ChannelWrite, ChannelManage:
		return true
	}
	return false
}

// Setting is a tri-state permission value. The zero value is Unset, so a
// missing map entry and an explicit Unset behave identically.
type Setting int

const (
	Unset Setting = iota
	Allow
	Deny
)

// settingNames maps settings to their JSON representation.
var settingNames = map[Setting]string{Unset: "unset", Allow: "allow", Deny: "deny"}

func (s Setting) String() string {
	if name, ok := settingNames[s]; ok {
		return name
	}
	return "unset"
}

// MarshalText implements encoding.TextMarshaler so settings serialise as their
// names inside hub JSON documents.
func (s Setting) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown values decode as
// Unset rather than failing, so hub documents written by newer versions remain
// loadable.
func (s *Setting) UnmarshalText(text []byte) error {
	switch string(text) {
	case "allow":
		*s = Allow
	case "deny":
		*s = Deny
	default:
		*s = Unset
	}
	return nil
}
