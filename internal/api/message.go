package api

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/gateway"
	"github.com/hubline-chat/hubline-server/internal/httputil"
	"github.com/hubline-chat/hubline-server/internal/hub"
	"github.com/hubline-chat/hubline-server/internal/index"
	"github.com/hubline-chat/hubline-server/internal/message"
	"github.com/hubline-chat/hubline-server/internal/permission"
	"github.com/hubline-chat/hubline-server/internal/protocol"
)

// MessageHandler serves message history and full-text search.
type MessageHandler struct {
	hubs         hub.Repository
	messages     message.Repository
	indexes      *index.Manager
	searchLimit  int
	historyLimit int
	log          zerolog.Logger
}

// NewMessageHandler creates a message handler. The limits cap the result
// sizes of search and history queries.
func NewMessageHandler(
	hubs hub.Repository,
	messages message.Repository,
	indexes *index.Manager,
	searchLimit, historyLimit int,
	logger zerolog.Logger,
) *MessageHandler {
	return &MessageHandler{
		hubs:         hubs,
		messages:     messages,
		indexes:      indexes,
		searchLimit:  searchLimit,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// Search handles GET /api/v1/hubs/:hub/channels/:channel/search. Requires
// the Read permission on the channel; returns matching message ids in
// descending score order.
func (h *MessageHandler) Search(c fiber.Ctx) error {
	hubID, channelID, wireErr := h.resolveRead(c)
	if wireErr != nil {
		return httputil.Fail(c, wireErr)
	}

	limit := clampLimit(c.Query("limit"), h.searchLimit)
	ids, err := h.indexes.Search(c, hubID, channelID, c.Query("q"), limit)
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}
	return httputil.Success(c, fiber.Map{"ids": ids})
}

// History handles GET /api/v1/hubs/:hub/channels/:channel/messages. Requires
// the Read permission on the channel; returns messages after the optional
// anchor in store order.
func (h *MessageHandler) History(c fiber.Ctx) error {
	hubID, channelID, wireErr := h.resolveRead(c)
	if wireErr != nil {
		return httputil.Fail(c, wireErr)
	}

	after := uuid.Nil
	if raw := c.Query("after"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return httputil.Fail(c, protocol.NewError(protocol.CodeMessageNotFound))
		}
		after = parsed
	}

	limit := clampLimit(c.Query("limit"), h.historyLimit)
	msgs, err := h.messages.After(c, hubID, channelID, after, limit)
	if err != nil {
		h.log.Error().Err(err).Stringer("channel_id", channelID).Msg("History query failed")
		return httputil.Fail(c, protocol.DataError(protocol.DataRead))
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return httputil.Success(c, fiber.Map{"messages": msgs})
}

// resolveRead checks that the caller may read the addressed channel.
func (h *MessageHandler) resolveRead(c fiber.Ctx) (uuid.UUID, uuid.UUID, *protocol.Error) {
	caller, ok := callerID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, protocol.NewError(protocol.CodeNotAuthenticated)
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return uuid.Nil, uuid.Nil, protocol.NewError(protocol.CodeHubNotFound)
	}
	channelID, ok := paramID(c, "channel")
	if !ok {
		return uuid.Nil, uuid.Nil, protocol.NewError(protocol.CodeChannelNotFound)
	}

	snap, err := h.hubs.Load(c, hubID)
	if err != nil {
		return uuid.Nil, uuid.Nil, gateway.WireError(err)
	}
	member, err := snap.GetMember(caller)
	if err != nil {
		return uuid.Nil, uuid.Nil, gateway.WireError(err)
	}
	if _, err := snap.GetChannel(channelID); err != nil {
		return uuid.Nil, uuid.Nil, gateway.WireError(err)
	}
	if !member.HasChannelPermission(snap, channelID, permission.ChannelRead) {
		return uuid.Nil, uuid.Nil, protocol.MissingChannelPermission(permission.ChannelRead)
	}
	return hubID, channelID, nil
}

// clampLimit parses a limit query parameter, falling back to and capping at
// max.
func clampLimit(raw string, max int) int {
	if raw == "" {
		return max
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return max
	}
	return n
}
