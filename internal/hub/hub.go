// Package hub holds the hub aggregate: channels, members, bans, and mutes,
// plus the permission evaluation rules that gate every gateway command and API
// call. A Hub value is a snapshot; mutations go through Repository.Update so
// concurrent writers serialise per hub.
package hub

import (
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hubline-chat/hubline-server/internal/permission"
)

// Sentinel errors for the hub package.
var (
	ErrNotFound        = errors.New("hub not found")
	ErrChannelNotFound = errors.New("channel not found")
	ErrNotAMember      = errors.New("user is not a member of the hub")
	ErrBanned          = errors.New("user is banned from the hub")
	ErrMuted           = errors.New("user is muted in the hub")
	ErrAlreadyMember   = errors.New("user is already a member")
	ErrNotBanned       = errors.New("user is not banned")
	ErrInvalidName     = errors.New("name must be 1-31 characters of [A-Za-z0-9 ._,-]")
	ErrOwnerImmutable  = errors.New("the hub owner cannot be kicked, banned, or muted")
)

// nameAllowed is the set of characters permitted in hub, channel, user, and
// nickname strings.
const nameAllowed = " .,_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ValidName reports whether s is a printable name of 1 to 31 allowed
// characters.
func ValidName(s string) bool {
	if len(s) < 1 || len(s) > 31 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune(nameAllowed, c) {
			return false
		}
	}
	return true
}

// ValidateName returns ErrInvalidName unless s is a valid name.
func ValidateName(s string) error {
	if !ValidName(s) {
		return ErrInvalidName
	}
	return nil
}

// HexID renders a 128-bit id the way it appears in on-disk paths: the UUID
// bytes interpreted as a big-endian unsigned integer, formatted as lowercase
// hex with leading zeros stripped.
func HexID(id uuid.UUID) string {
	s := strings.TrimLeft(hex.EncodeToString(id[:]), "0")
	if s == "" {
		return "0"
	}
	return s
}

// NowMS returns the current time in milliseconds since the Unix epoch, the
// timestamp unit used across all entities.
func NowMS() int64 {
	return time.Now().UnixMilli()
}

// Channel is a named message stream within a hub.
type Channel struct {
	ID          uuid.UUID `json:"id"`
	HubID       uuid.UUID `json:"hub_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedMS   int64     `json:"created_ms"`
}

// Member binds a user to a hub together with per-hub and per-channel
// permission settings. The owner is implicitly allowed everything regardless
// of these settings.
type Member struct {
	UserID             uuid.UUID                                                           `json:"user_id"`
	HubID              uuid.UUID                                                           `json:"hub_id"`
	JoinedMS           int64                                                               `json:"joined_ms"`
	Nickname           string                                                              `json:"nickname"`
	HubPermissions     map[permission.HubPermission]permission.Setting                     `json:"hub_permissions"`
	ChannelPermissions map[uuid.UUID]map[permission.ChannelPermission]permission.Setting   `json:"channel_permissions"`
}

// DefaultPermissions are the settings copied onto each new member when they
// join.
type DefaultPermissions struct {
	Hub     map[permission.HubPermission]permission.Setting     `json:"hub"`
	Channel map[permission.ChannelPermission]permission.Setting `json:"channel"`
}

// Hub is a named container of channels and members.
type Hub struct {
	ID                 uuid.UUID             `json:"id"`
	Name               string                `json:"name"`
	Description        string                `json:"description"`
	Owner              uuid.UUID             `json:"owner"`
	CreatedMS          int64                 `json:"created_ms"`
	Members            map[uuid.UUID]*Member `json:"members"`
	Channels           map[uuid.UUID]*Channel `json:"channels"`
	DefaultPermissions DefaultPermissions    `json:"default_permissions"`
	Bans               map[uuid.UUID]bool    `json:"bans"`
	Mutes              map[uuid.UUID]bool    `json:"mutes"`
}

// New creates a hub owned by the given user, who becomes its first member.
func New(name string, owner uuid.UUID) (*Hub, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	h := &Hub{
		ID:        uuid.New(),
		Name:      name,
		Owner:     owner,
		CreatedMS: NowMS(),
		Members:   make(map[uuid.UUID]*Member),
		Channels:  make(map[uuid.UUID]*Channel),
		DefaultPermissions: DefaultPermissions{
			Hub: map[permission.HubPermission]permission.Setting{
				permission.HubReadChannels:  permission.Allow,
				permission.HubWriteChannels: permission.Allow,
			},
		},
		Bans:  make(map[uuid.UUID]bool),
		Mutes: make(map[uuid.UUID]bool),
	}
	h.addMember(owner)
	return h, nil
}

// GetMember returns the member record for a user, ErrBanned if the user is
// banned, or ErrNotAMember otherwise.
func (h *Hub) GetMember(userID uuid.UUID) (*Member, error) {
	if m, ok := h.Members[userID]; ok {
		return m, nil
	}
	if h.Bans[userID] {
		return nil, ErrBanned
	}
	return nil, ErrNotAMember
}

// GetChannel returns the channel with the given id or ErrChannelNotFound.
func (h *Hub) GetChannel(channelID uuid.UUID) (*Channel, error) {
	if c, ok := h.Channels[channelID]; ok {
		return c, nil
	}
	return nil, ErrChannelNotFound
}

// addMember inserts a fresh member record seeded with the hub's default
// permission settings.
func (h *Hub) addMember(userID uuid.UUID) *Member {
	m := &Member{
		UserID:             userID,
		HubID:              h.ID,
		JoinedMS:           NowMS(),
		HubPermissions:     make(map[permission.HubPermission]permission.Setting),
		ChannelPermissions: make(map[uuid.UUID]map[permission.ChannelPermission]permission.Setting),
	}
	for p, s := range h.DefaultPermissions.Hub {
		m.HubPermissions[p] = s
	}
	h.Members[userID] = m
	return m
}

// Join adds a user to the hub. Banned users cannot join until unbanned.
func (h *Hub) Join(userID uuid.UUID) (*Member, error) {
	if h.Bans[userID] {
		return nil, ErrBanned
	}
	if _, ok := h.Members[userID]; ok {
		return nil, ErrAlreadyMember
	}
	return h.addMember(userID), nil
}

// Leave removes the user's member record. The owner cannot leave.
func (h *Hub) Leave(userID uuid.UUID) error {
	if userID == h.Owner {
		return ErrOwnerImmutable
	}
	if _, ok := h.Members[userID]; !ok {
		return ErrNotAMember
	}
	delete(h.Members, userID)
	delete(h.Mutes, userID)
	return nil
}

// Kick removes a member without banning them.
func (h *Hub) Kick(userID uuid.UUID) error {
	return h.Leave(userID)
}

// Ban removes the member (if present) and prevents rejoining until unbanned.
func (h *Hub) Ban(userID uuid.UUID) error {
	if userID == h.Owner {
		return ErrOwnerImmutable
	}
	delete(h.Members, userID)
	delete(h.Mutes, userID)
	h.Bans[userID] = true
	return nil
}

// Unban clears a ban. The user remains a non-member until they join again.
func (h *Hub) Unban(userID uuid.UUID) error {
	if !h.Bans[userID] {
		return ErrNotBanned
	}
	delete(h.Bans, userID)
	return nil
}

// Mute marks a member as muted. Muted members keep their membership but are
// denied channel Write everywhere.
func (h *Hub) Mute(userID uuid.UUID) error {
	if userID == h.Owner {
		return ErrOwnerImmutable
	}
	if _, ok := h.Members[userID]; !ok {
		return ErrNotAMember
	}
	h.Mutes[userID] = true
	return nil
}

// Unmute clears a member's muted status.
func (h *Hub) Unmute(userID uuid.UUID) error {
	if _, ok := h.Members[userID]; !ok {
		return ErrNotAMember
	}
	delete(h.Mutes, userID)
	return nil
}

// NewChannel creates a channel in the hub.
func (h *Hub) NewChannel(name string) (*Channel, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	c := &Channel{
		ID:        uuid.New(),
		HubID:     h.ID,
		Name:      name,
		CreatedMS: NowMS(),
	}
	h.Channels[c.ID] = c
	return c, nil
}

// DeleteChannel removes a channel from the hub and drops every member's
// channel-specific permission settings for it.
func (h *Hub) DeleteChannel(channelID uuid.UUID) error {
	if _, ok := h.Channels[channelID]; !ok {
		return ErrChannelNotFound
	}
	delete(h.Channels, channelID)
	for _, m := range h.Members {
		delete(m.ChannelPermissions, channelID)
	}
	return nil
}
