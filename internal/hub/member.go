package hub

import (
	"github.com/google/uuid"

	"github.com/hubline-chat/hubline-server/internal/permission"
)

// HasHubPermission evaluates a hub-wide permission for the member. First match
// wins: owner allows, ban denies, the explicit setting for the permission,
// then the explicit setting for All, otherwise deny.
func (m *Member) HasHubPermission(h *Hub, p permission.HubPermission) bool {
	if h.Owner == m.UserID {
		return true
	}
	if h.Bans[m.UserID] {
		return false
	}
	switch m.HubPermissions[p] {
	case permission.Allow:
		return true
	case permission.Deny:
		return false
	}
	if p != permission.HubAll {
		switch m.HubPermissions[permission.HubAll] {
		case permission.Allow:
			return true
		case permission.Deny:
			return false
		}
	}
	return false
}

// HasChannelPermission evaluates a channel permission for the member. Muted
// status denies Write before any other rule, including ownership. After that:
// owner allows, ban denies, the member's channel-specific setting, the
// hub-wide equivalent setting, the member's All setting, otherwise deny.
func (m *Member) HasChannelPermission(h *Hub, channelID uuid.UUID, p permission.ChannelPermission) bool {
	if p == permission.ChannelWrite && h.Mutes[m.UserID] {
		return false
	}
	if h.Owner == m.UserID {
		return true
	}
	if h.Bans[m.UserID] {
		return false
	}
	if overrides, ok := m.ChannelPermissions[channelID]; ok {
		switch overrides[p] {
		case permission.Allow:
			return true
		case permission.Deny:
			return false
		}
	}
	switch m.HubPermissions[p.HubEquivalent()] {
	case permission.Allow:
		return true
	case permission.Deny:
		return false
	}
	switch m.HubPermissions[permission.HubAll] {
	case permission.Allow:
		return true
	case permission.Deny:
		return false
	}
	return false
}

// SetHubPermission records a tri-state hub permission setting on the member.
// Unset removes the entry so the map does not accumulate dead keys.
func (m *Member) SetHubPermission(p permission.HubPermission, s permission.Setting) {
	if m.HubPermissions == nil {
		m.HubPermissions = make(map[permission.HubPermission]permission.Setting)
	}
	if s == permission.Unset {
		delete(m.HubPermissions, p)
		return
	}
	m.HubPermissions[p] = s
}

// SetChannelPermission records a tri-state channel permission setting on the
// member for one channel.
func (m *Member) SetChannelPermission(channelID uuid.UUID, p permission.ChannelPermission, s permission.Setting) {
	if m.ChannelPermissions == nil {
		m.ChannelPermissions = make(map[uuid.UUID]map[permission.ChannelPermission]permission.Setting)
	}
	overrides, ok := m.ChannelPermissions[channelID]
	if !ok {
		if s == permission.Unset {
			return
		}
		overrides = make(map[permission.ChannelPermission]permission.Setting)
		m.ChannelPermissions[channelID] = overrides
	}
	if s == permission.Unset {
		delete(overrides, p)
		if len(overrides) == 0 {
			delete(m.ChannelPermissions, channelID)
		}
		return
	}
	overrides[p] = s
}
