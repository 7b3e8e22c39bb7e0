package gateway

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/message"
	"github.com/hubline-chat/hubline-server/internal/protocol"
)

// Router fans dispatch events out to subscribed sessions. Delivery is
// best-effort and at-most-once: a session whose sink is full or closed loses
// the event, and never stalls delivery to anyone else. NewMessage events for
// one channel are published from the sending goroutine, so subscribers that
// receive two messages see them in send order.
type Router struct {
	registry *Registry
	log      zerolog.Logger
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry, logger zerolog.Logger) *Router {
	return &Router{
		registry: registry,
		log:      logger.With().Str("component", "router").Logger(),
	}
}

// NewMessage fans a freshly stored message out to the channel's subscribers.
func (r *Router) NewMessage(hubID, channelID uuid.UUID, msg *message.Message) {
	payload := protocol.NewMessageData{HubID: hubID, ChannelID: channelID, Message: *msg}
	r.fanOut(protocol.EventNewMessage, payload,
		r.registry.ChannelSubscribers(ChannelRef{Hub: hubID, Channel: channelID}))
}

// Typing fans a typing start or stop out to the channel's subscribers.
func (r *Router) Typing(event protocol.EventType, hubID, channelID, userID uuid.UUID) {
	payload := protocol.TypingData{HubID: hubID, ChannelID: channelID, UserID: userID}
	r.fanOut(event, payload,
		r.registry.ChannelSubscribers(ChannelRef{Hub: hubID, Channel: channelID}))
}

// HubUpdated fans a hub metadata change out to the hub's subscribers.
func (r *Router) HubUpdated(hubID uuid.UUID, kind protocol.HubUpdateKind) {
	payload := protocol.HubUpdatedData{HubID: hubID, Kind: kind}
	r.fanOut(protocol.EventHubUpdated, payload, r.registry.HubSubscribers(hubID))
}

// fanOut serialises the event once and queues it on every target sink.
func (r *Router) fanOut(event protocol.EventType, payload any, targets []*Session) {
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error().Err(err).Str("event", string(event)).Msg("Failed to marshal event payload")
		return
	}
	frame, err := protocol.NewEventFrame(event, data)
	if err != nil {
		r.log.Error().Err(err).Str("event", string(event)).Msg("Failed to build event frame")
		return
	}

	dropped := 0
	for _, s := range targets {
		if !s.TrySend(frame) {
			dropped++
		}
	}
	if dropped > 0 {
		r.log.Debug().Str("event", string(event)).Int("dropped", dropped).Msg("Dropped event for slow sessions")
	}
}
