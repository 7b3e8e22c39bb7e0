package protocol

import (
	"github.com/google/uuid"

	"github.com/hubline-chat/hubline-server/internal/message"
)

// EventType names a server-to-client dispatch event.
type EventType string

// Dispatch event types.
const (
	EventNewMessage  EventType = "NewMessage"
	EventHubUpdated  EventType = "HubUpdated"
	EventTypingStart EventType = "TypingStart"
	EventTypingStop  EventType = "TypingStop"
)

// HubUpdateType enumerates the kinds of hub metadata change carried by a
// HubUpdated event.
type HubUpdateType string

// Hub update kinds.
const (
	HubRenamed                   HubUpdateType = "renamed"
	HubDescriptionUpdated        HubUpdateType = "description_updated"
	HubDeleted                   HubUpdateType = "deleted"
	ChannelCreated               HubUpdateType = "channel_created"
	ChannelRenamed               HubUpdateType = "channel_renamed"
	ChannelDescriptionUpdated    HubUpdateType = "channel_description_updated"
	ChannelDeleted               HubUpdateType = "channel_deleted"
	UserJoined                   HubUpdateType = "user_joined"
	UserLeft                     HubUpdateType = "user_left"
	UserKicked                   HubUpdateType = "user_kicked"
	UserBanned                   HubUpdateType = "user_banned"
	UserUnbanned                 HubUpdateType = "user_unbanned"
	UserMuted                    HubUpdateType = "user_muted"
	UserUnmuted                  HubUpdateType = "user_unmuted"
	MemberNicknameChanged        HubUpdateType = "member_nickname_changed"
	UserHubPermissionChanged     HubUpdateType = "user_hub_permission_changed"
	UserChannelPermissionChanged HubUpdateType = "user_channel_permission_changed"
)

// HubUpdateKind is an update type plus the target it applies to. ChannelID is
// set for the Channel* kinds and UserChannelPermissionChanged; UserID for the
// User* and member kinds.
type HubUpdateKind struct {
	Type      HubUpdateType `json:"type"`
	ChannelID *uuid.UUID    `json:"channel_id,omitempty"`
	UserID    *uuid.UUID    `json:"user_id,omitempty"`
}

// HubKind returns a kind with no target, for the hub-level update types.
func HubKind(t HubUpdateType) HubUpdateKind {
	return HubUpdateKind{Type: t}
}

// ChannelKind returns a kind targeting a channel.
func ChannelKind(t HubUpdateType, channelID uuid.UUID) HubUpdateKind {
	return HubUpdateKind{Type: t, ChannelID: &channelID}
}

// UserKind returns a kind targeting a user.
func UserKind(t HubUpdateType, userID uuid.UUID) HubUpdateKind {
	return HubUpdateKind{Type: t, UserID: &userID}
}

// UserChannelKind returns a kind targeting a user within a channel.
func UserChannelKind(t HubUpdateType, userID, channelID uuid.UUID) HubUpdateKind {
	return HubUpdateKind{Type: t, UserID: &userID, ChannelID: &channelID}
}

// NewMessageData is the payload of a NewMessage event.
type NewMessageData struct {
	HubID     uuid.UUID       `json:"hub_id"`
	ChannelID uuid.UUID       `json:"channel_id"`
	Message   message.Message `json:"message"`
}

// TypingData is the payload of the TypingStart and TypingStop events.
type TypingData struct {
	HubID     uuid.UUID `json:"hub_id"`
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// HubUpdatedData is the payload of a HubUpdated event.
type HubUpdatedData struct {
	HubID uuid.UUID     `json:"hub_id"`
	Kind  HubUpdateKind `json:"kind"`
}
