package gateway

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/message"
	"github.com/hubline-chat/hubline-server/internal/protocol"
)

func drainEvents(t *testing.T, s *Session, n int) []protocol.EventFrame {
	t.Helper()
	frames := make([]protocol.EventFrame, 0, n)
	for i := 0; i < n; i++ {
		select {
		case raw := <-s.Out():
			var frame protocol.EventFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				t.Fatalf("unmarshal event frame: %v", err)
			}
			frames = append(frames, frame)
		default:
			t.Fatalf("only %d of %d expected frames queued", i, n)
		}
	}
	return frames
}

func TestRouter_NewMessageReachesChannelSubscribersOnly(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	router := NewRouter(registry, zerolog.Nop())

	hubID, channelID := uuid.New(), uuid.New()
	ref := ChannelRef{Hub: hubID, Channel: channelID}

	subscriber := NewSession(uuid.New(), 4)
	hubOnly := NewSession(uuid.New(), 4)
	registry.SubscribeChannel(subscriber, ref)
	registry.SubscribeHub(hubOnly, hubID)

	msg := &message.Message{ID: uuid.New(), Sender: uuid.New(), CreatedMS: 1, Content: "hi"}
	router.NewMessage(hubID, channelID, msg)

	frames := drainEvents(t, subscriber, 1)
	if frames[0].Event != protocol.EventNewMessage {
		t.Errorf("event = %q, want %q", frames[0].Event, protocol.EventNewMessage)
	}
	var data protocol.NewMessageData
	if err := json.Unmarshal(frames[0].Data, &data); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if data.Message.ID != msg.ID || data.ChannelID != channelID {
		t.Errorf("payload = %+v, want message %v in channel %v", data, msg.ID, channelID)
	}

	select {
	case raw := <-hubOnly.Out():
		t.Errorf("hub-only subscriber received %s, want nothing", raw)
	default:
	}
}

func TestRouter_NewMessagePreservesSendOrder(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	router := NewRouter(registry, zerolog.Nop())

	hubID, channelID := uuid.New(), uuid.New()
	s := NewSession(uuid.New(), 16)
	registry.SubscribeChannel(s, ChannelRef{Hub: hubID, Channel: channelID})

	var ids []uuid.UUID
	for i := 0; i < 10; i++ {
		msg := &message.Message{ID: uuid.New(), CreatedMS: int64(i), Content: fmt.Sprintf("m%d", i)}
		ids = append(ids, msg.ID)
		router.NewMessage(hubID, channelID, msg)
	}

	frames := drainEvents(t, s, 10)
	for i, frame := range frames {
		var data protocol.NewMessageData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			t.Fatalf("unmarshal payload %d: %v", i, err)
		}
		if data.Message.ID != ids[i] {
			t.Fatalf("frame %d carries message %v, want %v (order not preserved)", i, data.Message.ID, ids[i])
		}
	}
}

func TestRouter_SlowSessionDropsWithoutStallingOthers(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	router := NewRouter(registry, zerolog.Nop())

	hubID, channelID := uuid.New(), uuid.New()
	ref := ChannelRef{Hub: hubID, Channel: channelID}

	slow := NewSession(uuid.New(), 1)
	fast := NewSession(uuid.New(), 8)
	registry.SubscribeChannel(slow, ref)
	registry.SubscribeChannel(fast, ref)

	for i := 0; i < 3; i++ {
		router.NewMessage(hubID, channelID, &message.Message{ID: uuid.New(), Content: "x"})
	}

	// The fast session got everything; the slow one kept its first frame and
	// lost the rest.
	drainEvents(t, fast, 3)
	drainEvents(t, slow, 1)
	select {
	case <-slow.Out():
		t.Error("slow session has more than one frame queued")
	default:
	}
}

func TestRouter_HubUpdatedReachesHubSubscribers(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	router := NewRouter(registry, zerolog.Nop())

	hubID := uuid.New()
	s := NewSession(uuid.New(), 4)
	registry.SubscribeHub(s, hubID)

	router.HubUpdated(hubID, protocol.HubKind(protocol.HubRenamed))

	frames := drainEvents(t, s, 1)
	if frames[0].Event != protocol.EventHubUpdated {
		t.Fatalf("event = %q, want %q", frames[0].Event, protocol.EventHubUpdated)
	}
	var data protocol.HubUpdatedData
	if err := json.Unmarshal(frames[0].Data, &data); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if data.HubID != hubID || data.Kind.Type != protocol.HubRenamed {
		t.Errorf("payload = %+v, want renamed on %v", data, hubID)
	}
}

func TestRouter_Typing(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	router := NewRouter(registry, zerolog.Nop())

	hubID, channelID, userID := uuid.New(), uuid.New(), uuid.New()
	s := NewSession(uuid.New(), 4)
	registry.SubscribeChannel(s, ChannelRef{Hub: hubID, Channel: channelID})

	router.Typing(protocol.EventTypingStart, hubID, channelID, userID)
	router.Typing(protocol.EventTypingStop, hubID, channelID, userID)

	frames := drainEvents(t, s, 2)
	if frames[0].Event != protocol.EventTypingStart || frames[1].Event != protocol.EventTypingStop {
		t.Errorf("events = %q, %q; want start then stop", frames[0].Event, frames[1].Event)
	}
	var data protocol.TypingData
	if err := json.Unmarshal(frames[0].Data, &data); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if data.UserID != userID {
		t.Errorf("typing user = %v, want %v", data.UserID, userID)
	}
}
