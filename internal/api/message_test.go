package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/hubline-chat/hubline-server/internal/message"
	"github.com/hubline-chat/hubline-server/internal/protocol"
)

// seedMessages appends n messages to the channel and indexes them. Message i
// carries the token "topic<i>".
func seedMessages(t *testing.T, env *testEnv, hubID, channelID, sender uuid.UUID, n int) []message.Message {
	t.Helper()
	ctx := context.Background()

	msgs := make([]message.Message, 0, n)
	for i := 0; i < n; i++ {
		msg, err := env.messages.Append(ctx, hubID, channelID, sender, fmt.Sprintf("message about topic%d", i))
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if err := env.indexes.Add(ctx, hubID, channelID, msg); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		msgs = append(msgs, *msg)
	}
	return msgs
}

func historyURL(hubID, channelID uuid.UUID) string {
	return "/hubs/" + hubID.String() + "/channels/" + channelID.String() + "/messages"
}

func searchURL(hubID, channelID uuid.UUID) string {
	return "/hubs/" + hubID.String() + "/channels/" + channelID.String() + "/search"
}

func parseHistory(t *testing.T, body []byte) []message.Message {
	t.Helper()
	var data struct {
		Messages []message.Message `json:"messages"`
	}
	if err := json.Unmarshal(parseSuccess(t, body).Data, &data); err != nil {
		t.Fatalf("unmarshal history payload: %v", err)
	}
	return data.Messages
}

func TestHistory(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner, member := uuid.New(), uuid.New()
	h, ch := env.seedHub(t, owner, member)
	msgs := seedMessages(t, env, h.ID, ch.ID, owner, 5)

	resp := doReq(t, env.app(member), jsonReq(http.MethodGet, historyURL(h.ID, ch.ID), ""))
	wantStatus(t, resp, http.StatusOK)
	got := parseHistory(t, readBody(t, resp))
	if len(got) != 5 {
		t.Fatalf("history returned %d messages, want 5", len(got))
	}
	for i := range got {
		if got[i].ID != msgs[i].ID {
			t.Errorf("history[%d].ID = %v, want %v", i, got[i].ID, msgs[i].ID)
		}
	}

	// Anchored reads resume after the given message.
	resp = doReq(t, env.app(member), jsonReq(http.MethodGet, historyURL(h.ID, ch.ID)+"?after="+msgs[2].ID.String(), ""))
	wantStatus(t, resp, http.StatusOK)
	got = parseHistory(t, readBody(t, resp))
	if len(got) != 2 || got[0].ID != msgs[3].ID || got[1].ID != msgs[4].ID {
		t.Errorf("anchored history = %d messages, want the last 2", len(got))
	}

	// Limits cap the page size.
	resp = doReq(t, env.app(member), jsonReq(http.MethodGet, historyURL(h.ID, ch.ID)+"?limit=2", ""))
	wantStatus(t, resp, http.StatusOK)
	if got := parseHistory(t, readBody(t, resp)); len(got) != 2 {
		t.Errorf("limited history = %d messages, want 2", len(got))
	}
}

func TestHistory_EmptyChannel(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner, member := uuid.New(), uuid.New()
	h, ch := env.seedHub(t, owner, member)

	resp := doReq(t, env.app(member), jsonReq(http.MethodGet, historyURL(h.ID, ch.ID), ""))
	wantStatus(t, resp, http.StatusOK)
	if got := parseHistory(t, readBody(t, resp)); len(got) != 0 {
		t.Errorf("empty channel history = %d messages, want 0", len(got))
	}
}

func TestHistory_BadAnchor(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner, member := uuid.New(), uuid.New()
	h, ch := env.seedHub(t, owner, member)

	resp := doReq(t, env.app(member), jsonReq(http.MethodGet, historyURL(h.ID, ch.ID)+"?after=not-a-uuid", ""))
	wantStatus(t, resp, http.StatusNotFound)
	wantErrorCode(t, readBody(t, resp), protocol.CodeMessageNotFound)
}

func TestHistory_RequiresRead(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner := uuid.New()
	h, ch := env.seedHub(t, owner, uuid.Nil)

	// Strangers are treated as non-members.
	resp := doReq(t, env.app(uuid.New()), jsonReq(http.MethodGet, historyURL(h.ID, ch.ID), ""))
	wantStatus(t, resp, http.StatusNotFound)
	wantErrorCode(t, readBody(t, resp), protocol.CodeNotAMember)
}

func TestSearch(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner, member := uuid.New(), uuid.New()
	h, ch := env.seedHub(t, owner, member)
	msgs := seedMessages(t, env, h.ID, ch.ID, owner, 5)

	resp := doReq(t, env.app(member), jsonReq(http.MethodGet, searchURL(h.ID, ch.ID)+"?q=topic3", ""))
	wantStatus(t, resp, http.StatusOK)

	var data struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if err := json.Unmarshal(parseSuccess(t, readBody(t, resp)).Data, &data); err != nil {
		t.Fatalf("unmarshal search payload: %v", err)
	}
	if len(data.IDs) != 1 || data.IDs[0] != msgs[3].ID {
		t.Errorf("search ids = %v, want [%v]", data.IDs, msgs[3].ID)
	}
}

func TestSearch_BadQuery(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner, member := uuid.New(), uuid.New()
	h, ch := env.seedHub(t, owner, member)
	seedMessages(t, env, h.ID, ch.ID, owner, 1)

	resp := doReq(t, env.app(member), jsonReq(http.MethodGet, searchURL(h.ID, ch.ID)+"?q=", ""))
	wantStatus(t, resp, http.StatusBadRequest)
	wantErrorCode(t, readBody(t, resp), protocol.CodeIndexError)
}

func TestSearch_UnknownChannel(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner, member := uuid.New(), uuid.New()
	h, _ := env.seedHub(t, owner, member)

	resp := doReq(t, env.app(member), jsonReq(http.MethodGet, searchURL(h.ID, uuid.New())+"?q=anything", ""))
	wantStatus(t, resp, http.StatusNotFound)
	wantErrorCode(t, readBody(t, resp), protocol.CodeChannelNotFound)
}
