package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/gateway"
	"github.com/hubline-chat/hubline-server/internal/httputil"
	"github.com/hubline-chat/hubline-server/internal/hub"
	"github.com/hubline-chat/hubline-server/internal/index"
	"github.com/hubline-chat/hubline-server/internal/permission"
	"github.com/hubline-chat/hubline-server/internal/protocol"
)

// ChannelHandler serves channel lifecycle endpoints.
type ChannelHandler struct {
	hubs     hub.Repository
	hubAPI   *HubHandler
	indexes  *index.Manager
	registry *gateway.Registry
	router   *gateway.Router
	log      zerolog.Logger
}

// NewChannelHandler creates a channel handler. hubAPI supplies channel data
// removal on delete.
func NewChannelHandler(
	hubs hub.Repository,
	hubAPI *HubHandler,
	indexes *index.Manager,
	registry *gateway.Registry,
	router *gateway.Router,
	logger zerolog.Logger,
) *ChannelHandler {
	return &ChannelHandler{
		hubs:     hubs,
		hubAPI:   hubAPI,
		indexes:  indexes,
		registry: registry,
		router:   router,
		log:      logger,
	}
}

// CreateChannelRequest is the body of POST /hubs/:hub/channels.
type CreateChannelRequest struct {
	Name string `json:"name"`
}

// UpdateChannelRequest is the body of PATCH /hubs/:hub/channels/:channel.
type UpdateChannelRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// CreateChannel handles POST /api/v1/hubs/:hub/channels. Requires the
// ManageChannels permission; emits ChannelCreated.
func (h *ChannelHandler) CreateChannel(c fiber.Ctx) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeHubNotFound))
	}

	var body CreateChannelRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, protocol.NewError(protocol.CodeInvalidName))
	}

	var created *hub.Channel
	_, err := h.hubs.Update(c, hubID, func(s *hub.Hub) error {
		member, err := s.GetMember(caller)
		if err != nil {
			return err
		}
		if !member.HasHubPermission(s, permission.HubManageChannels) {
			return protocol.MissingHubPermission(permission.HubManageChannels)
		}
		ch, err := s.NewChannel(body.Name)
		if err != nil {
			return err
		}
		created = ch
		return nil
	})
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}

	h.router.HubUpdated(hubID, protocol.ChannelKind(protocol.ChannelCreated, created.ID))
	return httputil.SuccessStatus(c, fiber.StatusCreated, created)
}

// UpdateChannel handles PATCH /api/v1/hubs/:hub/channels/:channel. Requires
// the Manage permission on the channel; emits ChannelRenamed and
// ChannelDescriptionUpdated.
func (h *ChannelHandler) UpdateChannel(c fiber.Ctx) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeHubNotFound))
	}
	channelID, ok := paramID(c, "channel")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeChannelNotFound))
	}

	var body UpdateChannelRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, protocol.NewError(protocol.CodeInvalidName))
	}

	var (
		kinds   []protocol.HubUpdateKind
		updated *hub.Channel
	)
	_, err := h.hubs.Update(c, hubID, func(s *hub.Hub) error {
		member, err := s.GetMember(caller)
		if err != nil {
			return err
		}
		ch, err := s.GetChannel(channelID)
		if err != nil {
			return err
		}
		if !member.HasChannelPermission(s, channelID, permission.ChannelManage) {
			return protocol.MissingChannelPermission(permission.ChannelManage)
		}
		if body.Name != nil && *body.Name != ch.Name {
			if err := hub.ValidateName(*body.Name); err != nil {
				return err
			}
			ch.Name = *body.Name
			kinds = append(kinds, protocol.ChannelKind(protocol.ChannelRenamed, channelID))
		}
		if body.Description != nil && *body.Description != ch.Description {
			ch.Description = *body.Description
			kinds = append(kinds, protocol.ChannelKind(protocol.ChannelDescriptionUpdated, channelID))
		}
		updated = ch
		return nil
	})
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}

	for _, kind := range kinds {
		h.router.HubUpdated(hubID, kind)
	}
	return httputil.Success(c, updated)
}

// DeleteChannel handles DELETE /api/v1/hubs/:hub/channels/:channel. Requires
// the Manage permission on the channel; emits ChannelDeleted and drops the
// channel's subscriptions, index, and data.
func (h *ChannelHandler) DeleteChannel(c fiber.Ctx) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeHubNotFound))
	}
	channelID, ok := paramID(c, "channel")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeChannelNotFound))
	}

	_, err := h.hubs.Update(c, hubID, func(s *hub.Hub) error {
		member, err := s.GetMember(caller)
		if err != nil {
			return err
		}
		if _, err := s.GetChannel(channelID); err != nil {
			return err
		}
		if !member.HasChannelPermission(s, channelID, permission.ChannelManage) {
			return protocol.MissingChannelPermission(permission.ChannelManage)
		}
		return s.DeleteChannel(channelID)
	})
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}

	h.router.HubUpdated(hubID, protocol.ChannelKind(protocol.ChannelDeleted, channelID))
	h.registry.DisconnectChannel(gateway.ChannelRef{Hub: hubID, Channel: channelID})

	if err := h.indexes.CloseChannel(hubID, channelID); err != nil {
		h.log.Warn().Err(err).Stringer("channel_id", channelID).Msg("Index close failed during channel delete")
	}
	if err := h.hubAPI.RemoveChannelData(hubID, channelID); err != nil {
		h.log.Warn().Err(err).Stringer("channel_id", channelID).Msg("Channel data removal failed")
	}

	return httputil.Success(c, fiber.Map{"deleted": channelID})
}
