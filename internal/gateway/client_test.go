package gateway

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/protocol"
)

func TestClient_DuplicateIdentifyGoesThroughSink(t *testing.T) {
	t.Parallel()

	// conn is nil on purpose: once a session exists the write pump is the
	// connection's only writer, so a repeated identify must never touch the
	// socket directly.
	c := &Client{log: zerolog.Nop()}
	session := NewSession(uuid.New(), 4)
	c.setSession(session)

	c.handleIdentify(&protocol.CommandFrame{MessageID: 3, Command: protocol.CommandIdentify, Token: "again"})

	select {
	case raw := <-session.Out():
		var frame protocol.ResponseFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("unmarshal acknowledgement: %v", err)
		}
		if frame.RespondingTo != 3 || frame.Response != protocol.ResponseError {
			t.Errorf("acknowledgement = %+v, want error responding to 3", frame)
		}
		if frame.Err == nil || frame.Err.Code != protocol.CodeNotAuthenticated {
			t.Errorf("acknowledgement error = %+v, want %s", frame.Err, protocol.CodeNotAuthenticated)
		}
	default:
		t.Fatal("no acknowledgement queued on the session sink")
	}
}

func TestClient_SessionAccessIsSynchronized(t *testing.T) {
	t.Parallel()

	// The identify-timeout callback reads the session from the timer
	// goroutine while the read pump assigns it. Exercised here from two
	// goroutines so the race detector covers the accessors.
	c := &Client{log: zerolog.Nop()}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = c.sessionRef()
		}
	}()
	for i := 0; i < 1000; i++ {
		c.setSession(NewSession(uuid.New(), 1))
	}
	<-done

	if c.sessionRef() == nil {
		t.Error("session not visible after assignment")
	}
}
