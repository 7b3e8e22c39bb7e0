package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/gateway"
	"github.com/hubline-chat/hubline-server/internal/httputil"
	"github.com/hubline-chat/hubline-server/internal/hub"
	"github.com/hubline-chat/hubline-server/internal/permission"
	"github.com/hubline-chat/hubline-server/internal/protocol"
)

// MemberHandler serves moderation and permission endpoints.
type MemberHandler struct {
	hubs   hub.Repository
	hubAPI *HubHandler
	router *gateway.Router
	log    zerolog.Logger
}

// NewMemberHandler creates a member handler.
func NewMemberHandler(hubs hub.Repository, hubAPI *HubHandler, router *gateway.Router, logger zerolog.Logger) *MemberHandler {
	return &MemberHandler{hubs: hubs, hubAPI: hubAPI, router: router, log: logger}
}

// UpdateMemberRequest is the body of PATCH /hubs/:hub/members/:user.
type UpdateMemberRequest struct {
	Nickname string `json:"nickname"`
}

// SetHubPermissionRequest is the body of PUT .../permissions/hub.
type SetHubPermissionRequest struct {
	Permission permission.HubPermission `json:"permission"`
	Setting    permission.Setting       `json:"setting"`
}

// SetChannelPermissionRequest is the body of PUT .../permissions/channel/:channel.
type SetChannelPermissionRequest struct {
	Permission permission.ChannelPermission `json:"permission"`
	Setting    permission.Setting           `json:"setting"`
}

// moderate runs a moderation action against a target member: the caller must
// hold required, then apply mutates the snapshot. On success the update kind
// is emitted for the target.
func (h *MemberHandler) moderate(
	c fiber.Ctx,
	required permission.HubPermission,
	kind protocol.HubUpdateType,
	removesMember bool,
	apply func(s *hub.Hub, target uuid.UUID) error,
) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeHubNotFound))
	}
	target, ok := paramID(c, "user")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeMemberNotFound))
	}

	_, err := h.hubs.Update(c, hubID, func(s *hub.Hub) error {
		member, err := s.GetMember(caller)
		if err != nil {
			return err
		}
		if !member.HasHubPermission(s, required) {
			return protocol.MissingHubPermission(required)
		}
		return apply(s, target)
	})
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}

	if removesMember {
		h.hubAPI.recordMembership(c, target, hubID, false)
	}
	h.router.HubUpdated(hubID, protocol.UserKind(kind, target))
	return httputil.Success(c, fiber.Map{"user_id": target})
}

// KickMember handles POST /api/v1/hubs/:hub/members/:user/kick.
func (h *MemberHandler) KickMember(c fiber.Ctx) error {
	return h.moderate(c, permission.HubKick, protocol.UserKicked, true, func(s *hub.Hub, target uuid.UUID) error {
		return s.Kick(target)
	})
}

// BanMember handles POST /api/v1/hubs/:hub/members/:user/ban.
func (h *MemberHandler) BanMember(c fiber.Ctx) error {
	return h.moderate(c, permission.HubBan, protocol.UserBanned, true, func(s *hub.Hub, target uuid.UUID) error {
		return s.Ban(target)
	})
}

// UnbanMember handles POST /api/v1/hubs/:hub/members/:user/unban.
func (h *MemberHandler) UnbanMember(c fiber.Ctx) error {
	return h.moderate(c, permission.HubUnban, protocol.UserUnbanned, false, func(s *hub.Hub, target uuid.UUID) error {
		return s.Unban(target)
	})
}

// MuteMember handles POST /api/v1/hubs/:hub/members/:user/mute.
func (h *MemberHandler) MuteMember(c fiber.Ctx) error {
	return h.moderate(c, permission.HubMute, protocol.UserMuted, false, func(s *hub.Hub, target uuid.UUID) error {
		return s.Mute(target)
	})
}

// UnmuteMember handles POST /api/v1/hubs/:hub/members/:user/unmute.
func (h *MemberHandler) UnmuteMember(c fiber.Ctx) error {
	return h.moderate(c, permission.HubUnmute, protocol.UserUnmuted, false, func(s *hub.Hub, target uuid.UUID) error {
		return s.Unmute(target)
	})
}

// UpdateMember handles PATCH /api/v1/hubs/:hub/members/:user. Members set
// their own nickname; emits MemberNicknameChanged.
func (h *MemberHandler) UpdateMember(c fiber.Ctx) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeHubNotFound))
	}
	target, ok := paramID(c, "user")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeMemberNotFound))
	}
	if target != caller {
		return httputil.Fail(c, protocol.NewError(protocol.CodeMissingHubPermission))
	}

	var body UpdateMemberRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, protocol.NewError(protocol.CodeInvalidName))
	}

	var updated *hub.Member
	_, err := h.hubs.Update(c, hubID, func(s *hub.Hub) error {
		member, err := s.GetMember(caller)
		if err != nil {
			return err
		}
		if err := hub.ValidateName(body.Nickname); err != nil {
			return err
		}
		member.Nickname = body.Nickname
		updated = member
		return nil
	})
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}

	h.router.HubUpdated(hubID, protocol.UserKind(protocol.MemberNicknameChanged, caller))
	return httputil.Success(c, updated)
}

// SetHubPermission handles PUT /api/v1/hubs/:hub/members/:user/permissions/hub.
// Requires Administrate; emits UserHubPermissionChanged.
func (h *MemberHandler) SetHubPermission(c fiber.Ctx) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeHubNotFound))
	}
	target, ok := paramID(c, "user")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeMemberNotFound))
	}

	var body SetHubPermissionRequest
	if err := c.Bind().Body(&body); err != nil || !permission.ValidHub(body.Permission) {
		return httputil.Fail(c, protocol.NewError(protocol.CodeInvalidName))
	}

	_, err := h.hubs.Update(c, hubID, func(s *hub.Hub) error {
		member, err := s.GetMember(caller)
		if err != nil {
			return err
		}
		if !member.HasHubPermission(s, permission.HubAdministrate) {
			return protocol.MissingHubPermission(permission.HubAdministrate)
		}
		targetMember, err := s.GetMember(target)
		if err != nil {
			return err
		}
		targetMember.SetHubPermission(body.Permission, body.Setting)
		return nil
	})
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}

	h.router.HubUpdated(hubID, protocol.UserKind(protocol.UserHubPermissionChanged, target))
	return httputil.Success(c, fiber.Map{"user_id": target})
}

// SetChannelPermission handles
// PUT /api/v1/hubs/:hub/members/:user/permissions/channel/:channel. Requires
// Administrate; emits UserChannelPermissionChanged.
func (h *MemberHandler) SetChannelPermission(c fiber.Ctx) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeHubNotFound))
	}
	target, ok := paramID(c, "user")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeMemberNotFound))
	}
	channelID, ok := paramID(c, "channel")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeChannelNotFound))
	}

	var body SetChannelPermissionRequest
	if err := c.Bind().Body(&body); err != nil || !permission.ValidChannel(body.Permission) {
		return httputil.Fail(c, protocol.NewError(protocol.CodeInvalidName))
	}

	_, err := h.hubs.Update(c, hubID, func(s *hub.Hub) error {
		member, err := s.GetMember(caller)
		if err != nil {
			return err
		}
		if !member.HasHubPermission(s, permission.HubAdministrate) {
			return protocol.MissingHubPermission(permission.HubAdministrate)
		}
		if _, err := s.GetChannel(channelID); err != nil {
			return err
		}
		targetMember, err := s.GetMember(target)
		if err != nil {
			return err
		}
		targetMember.SetChannelPermission(channelID, body.Permission, body.Setting)
		return nil
	})
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}

	h.router.HubUpdated(hubID, protocol.UserChannelKind(protocol.UserChannelPermissionChanged, target, channelID))
	return httputil.Success(c, fiber.Map{"user_id": target})
}
