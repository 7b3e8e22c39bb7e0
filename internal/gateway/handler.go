package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/hub"
	"github.com/hubline-chat/hubline-server/internal/index"
	"github.com/hubline-chat/hubline-server/internal/message"
	"github.com/hubline-chat/hubline-server/internal/permission"
	"github.com/hubline-chat/hubline-server/internal/protocol"
)

// Handler executes gateway commands for identified sessions. Each command
// loads a hub snapshot, checks permissions against it, mutates the registry
// or the stores, and emits the resulting events through the router.
type Handler struct {
	hubs     hub.Repository
	messages message.Repository
	indexes  *index.Manager
	registry *Registry
	router   *Router
	log      zerolog.Logger
}

// NewHandler wires the command handler to its collaborators.
func NewHandler(
	hubs hub.Repository,
	messages message.Repository,
	indexes *index.Manager,
	registry *Registry,
	router *Router,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		hubs:     hubs,
		messages: messages,
		indexes:  indexes,
		registry: registry,
		router:   router,
		log:      logger.With().Str("component", "handler").Logger(),
	}
}

// HandleCommand executes one command for an identified session and returns
// the serialised acknowledgement frame.
func (h *Handler) HandleCommand(ctx context.Context, s *Session, frame *protocol.CommandFrame) []byte {
	switch frame.Command {
	case protocol.CommandSubscribeHub:
		return h.ack(frame, h.subscribeHub(ctx, s, frame))
	case protocol.CommandUnsubscribeHub:
		return h.ack(frame, h.unsubscribeHub(s, frame))
	case protocol.CommandSubscribeChannel:
		return h.ack(frame, h.subscribeChannel(ctx, s, frame))
	case protocol.CommandUnsubscribeChannel:
		return h.ack(frame, h.unsubscribeChannel(s, frame))
	case protocol.CommandStartTyping:
		return h.ack(frame, h.typing(ctx, s, frame, protocol.EventTypingStart))
	case protocol.CommandStopTyping:
		return h.ack(frame, h.typing(ctx, s, frame, protocol.EventTypingStop))
	case protocol.CommandSendMessage:
		id, wireErr := h.sendMessage(ctx, s, frame)
		if wireErr != nil {
			return h.ack(frame, wireErr)
		}
		out, err := protocol.NewIDFrame(frame.MessageID, id)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to build id acknowledgement")
			return h.ack(frame, protocol.NewError(protocol.CodeInternal))
		}
		return out
	default:
		return h.ack(frame, protocol.NewError(protocol.CodeInternal))
	}
}

// ack builds a success or error acknowledgement for the command.
func (h *Handler) ack(frame *protocol.CommandFrame, wireErr *protocol.Error) []byte {
	var (
		out []byte
		err error
	)
	if wireErr == nil {
		out, err = protocol.NewSuccessFrame(frame.MessageID)
	} else {
		out, err = protocol.NewErrorFrame(frame.MessageID, wireErr)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build acknowledgement")
		return nil
	}
	return out
}

func (h *Handler) subscribeHub(ctx context.Context, s *Session, frame *protocol.CommandFrame) *protocol.Error {
	if frame.HubID == nil {
		return protocol.NewError(protocol.CodeHubNotFound)
	}
	snap, err := h.hubs.Load(ctx, *frame.HubID)
	if err != nil {
		return WireError(err)
	}
	if _, err := snap.GetMember(s.UserID()); err != nil {
		return WireError(err)
	}
	h.registry.SubscribeHub(s, snap.ID)
	return nil
}

func (h *Handler) unsubscribeHub(s *Session, frame *protocol.CommandFrame) *protocol.Error {
	if frame.HubID == nil {
		return protocol.NewError(protocol.CodeHubNotFound)
	}
	h.registry.UnsubscribeHub(s, *frame.HubID)
	return nil
}

func (h *Handler) subscribeChannel(ctx context.Context, s *Session, frame *protocol.CommandFrame) *protocol.Error {
	_, ch, wireErr := h.resolveChannel(ctx, s, frame, permission.ChannelRead)
	if wireErr != nil {
		return wireErr
	}
	h.registry.SubscribeChannel(s, ChannelRef{Hub: ch.HubID, Channel: ch.ID})
	return nil
}

func (h *Handler) unsubscribeChannel(s *Session, frame *protocol.CommandFrame) *protocol.Error {
	if frame.HubID == nil || frame.ChannelID == nil {
		return protocol.NewError(protocol.CodeChannelNotFound)
	}
	h.registry.UnsubscribeChannel(s, ChannelRef{Hub: *frame.HubID, Channel: *frame.ChannelID})
	return nil
}

func (h *Handler) typing(ctx context.Context, s *Session, frame *protocol.CommandFrame, event protocol.EventType) *protocol.Error {
	_, ch, wireErr := h.resolveChannel(ctx, s, frame, permission.ChannelWrite)
	if wireErr != nil {
		return wireErr
	}
	h.router.Typing(event, ch.HubID, ch.ID, s.UserID())
	return nil
}

func (h *Handler) sendMessage(ctx context.Context, s *Session, frame *protocol.CommandFrame) (uuid.UUID, *protocol.Error) {
	if frame.HubID == nil || frame.ChannelID == nil {
		return uuid.Nil, protocol.NewError(protocol.CodeChannelNotFound)
	}
	snap, err := h.hubs.Load(ctx, *frame.HubID)
	if err != nil {
		return uuid.Nil, WireError(err)
	}
	member, err := snap.GetMember(s.UserID())
	if err != nil {
		return uuid.Nil, WireError(err)
	}
	ch, err := snap.GetChannel(*frame.ChannelID)
	if err != nil {
		return uuid.Nil, WireError(err)
	}
	// Muted is reported as its own condition, ahead of the generic
	// permission denial it also causes.
	if snap.Mutes[member.UserID] {
		return uuid.Nil, protocol.NewError(protocol.CodeMuted)
	}
	if !member.HasChannelPermission(snap, ch.ID, permission.ChannelWrite) {
		return uuid.Nil, protocol.MissingChannelPermission(permission.ChannelWrite)
	}

	content := message.Sanitize(frame.Content)
	if err := message.ValidateContent(content); err != nil {
		return uuid.Nil, WireError(err)
	}

	msg, err := h.messages.Append(ctx, snap.ID, ch.ID, member.UserID, content)
	if err != nil {
		h.log.Error().Err(err).
			Stringer("hub_id", snap.ID).
			Stringer("channel_id", ch.ID).
			Msg("Message append failed")
		return uuid.Nil, protocol.NewError(protocol.CodeMessageSendFailed)
	}

	// Fan out before indexing, from this goroutine, so subscribers observe
	// messages of one channel in send order.
	h.router.NewMessage(snap.ID, ch.ID, msg)

	if err := h.indexes.Add(ctx, snap.ID, ch.ID, msg); err != nil {
		h.log.Error().Err(err).
			Stringer("hub_id", snap.ID).
			Stringer("channel_id", ch.ID).
			Stringer("message_id", msg.ID).
			Msg("Index add failed, message remains in store")
		return uuid.Nil, WireError(err)
	}

	return msg.ID, nil
}

// resolveChannel loads the hub snapshot and checks that the session's user is
// a member holding the given permission on the addressed channel.
func (h *Handler) resolveChannel(ctx context.Context, s *Session, frame *protocol.CommandFrame, p permission.ChannelPermission) (*hub.Member, *hub.Channel, *protocol.Error) {
	if frame.HubID == nil || frame.ChannelID == nil {
		return nil, nil, protocol.NewError(protocol.CodeChannelNotFound)
	}
	snap, err := h.hubs.Load(ctx, *frame.HubID)
	if err != nil {
		return nil, nil, WireError(err)
	}
	member, err := snap.GetMember(s.UserID())
	if err != nil {
		return nil, nil, WireError(err)
	}
	ch, err := snap.GetChannel(*frame.ChannelID)
	if err != nil {
		return nil, nil, WireError(err)
	}
	if !member.HasChannelPermission(snap, ch.ID, p) {
		return nil, nil, protocol.MissingChannelPermission(p)
	}
	return member, ch, nil
}
