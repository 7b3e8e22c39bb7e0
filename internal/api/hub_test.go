package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/hubline-chat/hubline-server/internal/hub"
	"github.com/hubline-chat/hubline-server/internal/protocol"
	"github.com/hubline-chat/hubline-server/internal/user"
)

func TestCreateHub(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner := uuid.New()

	resp := doReq(t, env.app(owner), jsonReq(http.MethodPost, "/hubs", `{"name":"gamers"}`))
	wantStatus(t, resp, http.StatusCreated)

	var created hub.Hub
	if err := json.Unmarshal(parseSuccess(t, readBody(t, resp)).Data, &created); err != nil {
		t.Fatalf("unmarshal hub: %v", err)
	}
	if created.Name != "gamers" || created.Owner != owner {
		t.Errorf("created hub = %+v", created)
	}
	if _, ok := created.Members[owner]; !ok {
		t.Error("owner is not a member of the created hub")
	}

	// Persisted, and the membership is mirrored onto the user record when one
	// exists.
	if _, err := env.hubs.Load(context.Background(), created.ID); err != nil {
		t.Errorf("Load(created hub) error = %v", err)
	}
}

func TestCreateHub_InvalidName(t *testing.T) {
	t.Parallel()
	env := newEnv(t)

	resp := doReq(t, env.app(uuid.New()), jsonReq(http.MethodPost, "/hubs", `{"name":"  "}`))
	wantStatus(t, resp, http.StatusBadRequest)
	wantErrorCode(t, readBody(t, resp), protocol.CodeInvalidName)
}

func TestGetHub_MembersOnly(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner, member := uuid.New(), uuid.New()
	h, _ := env.seedHub(t, owner, member)

	resp := doReq(t, env.app(member), jsonReq(http.MethodGet, "/hubs/"+h.ID.String(), ""))
	wantStatus(t, resp, http.StatusOK)

	// Strangers get the same answer as for a hub that does not exist.
	resp = doReq(t, env.app(uuid.New()), jsonReq(http.MethodGet, "/hubs/"+h.ID.String(), ""))
	wantStatus(t, resp, http.StatusNotFound)
	wantErrorCode(t, readBody(t, resp), protocol.CodeNotAMember)

	resp = doReq(t, env.app(member), jsonReq(http.MethodGet, "/hubs/"+uuid.NewString(), ""))
	wantStatus(t, resp, http.StatusNotFound)
	wantErrorCode(t, readBody(t, resp), protocol.CodeHubNotFound)
}

func TestUpdateHub(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner, member := uuid.New(), uuid.New()
	h, _ := env.seedHub(t, owner, member)

	// Plain members lack Configure.
	resp := doReq(t, env.app(member), jsonReq(http.MethodPatch, "/hubs/"+h.ID.String(), `{"name":"renamed"}`))
	wantStatus(t, resp, http.StatusForbidden)
	wantErrorCode(t, readBody(t, resp), protocol.CodeMissingHubPermission)

	resp = doReq(t, env.app(owner), jsonReq(http.MethodPatch, "/hubs/"+h.ID.String(), `{"name":"renamed","description":"now with lore"}`))
	wantStatus(t, resp, http.StatusOK)

	got, err := env.hubs.Load(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Name != "renamed" || got.Description != "now with lore" {
		t.Errorf("updated hub = name %q, description %q", got.Name, got.Description)
	}
}

func TestUpdateHub_NotifiesSubscribers(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner, member := uuid.New(), uuid.New()
	h, _ := env.seedHub(t, owner, member)
	watcher := env.watchHub(h.ID)

	resp := doReq(t, env.app(owner), jsonReq(http.MethodPatch, "/hubs/"+h.ID.String(), `{"name":"renamed"}`))
	wantStatus(t, resp, http.StatusOK)

	data := drainHubUpdated(t, watcher)
	if data.HubID != h.ID || data.Kind.Type != protocol.HubRenamed {
		t.Errorf("event = %+v, want %s for hub %v", data, protocol.HubRenamed, h.ID)
	}
}

func TestDeleteHub_OwnerOnly(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner, member := uuid.New(), uuid.New()
	h, _ := env.seedHub(t, owner, member)

	resp := doReq(t, env.app(member), jsonReq(http.MethodDelete, "/hubs/"+h.ID.String(), ""))
	wantStatus(t, resp, http.StatusForbidden)
	wantErrorCode(t, readBody(t, resp), protocol.CodeMissingHubPermission)

	resp = doReq(t, env.app(owner), jsonReq(http.MethodDelete, "/hubs/"+h.ID.String(), ""))
	wantStatus(t, resp, http.StatusOK)

	if _, err := env.hubs.Load(context.Background(), h.ID); !errors.Is(err, hub.ErrNotFound) {
		t.Errorf("Load(deleted hub) error = %v, want ErrNotFound", err)
	}
}

func TestJoinLeaveHub(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner := uuid.New()
	h, _ := env.seedHub(t, owner, uuid.Nil)

	// Joining mirrors onto the user record.
	joiner, err := user.New("carol")
	if err != nil {
		t.Fatalf("user.New() error = %v", err)
	}
	if err := env.users.Save(context.Background(), joiner); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	resp := doReq(t, env.app(joiner.ID), jsonReq(http.MethodPost, "/hubs/"+h.ID.String()+"/join", ""))
	wantStatus(t, resp, http.StatusOK)

	got, _ := env.hubs.Load(context.Background(), h.ID)
	if _, ok := got.Members[joiner.ID]; !ok {
		t.Error("joiner is not a member after join")
	}
	u, _ := env.users.Load(context.Background(), joiner.ID)
	if !u.InHubs[h.ID] {
		t.Error("join not mirrored onto user record")
	}

	// Joining twice is reported, not silently accepted.
	resp = doReq(t, env.app(joiner.ID), jsonReq(http.MethodPost, "/hubs/"+h.ID.String()+"/join", ""))
	wantStatus(t, resp, http.StatusNotFound)
	wantErrorCode(t, readBody(t, resp), protocol.CodeNotAMember)

	resp = doReq(t, env.app(joiner.ID), jsonReq(http.MethodPost, "/hubs/"+h.ID.String()+"/leave", ""))
	wantStatus(t, resp, http.StatusOK)

	got, _ = env.hubs.Load(context.Background(), h.ID)
	if _, ok := got.Members[joiner.ID]; ok {
		t.Error("joiner is still a member after leave")
	}
	u, _ = env.users.Load(context.Background(), joiner.ID)
	if u.InHubs[h.ID] {
		t.Error("leave not mirrored onto user record")
	}
}

func TestJoinHub_BannedUser(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner, banned := uuid.New(), uuid.New()
	h, _ := env.seedHub(t, owner, banned)

	if _, err := env.hubs.Update(context.Background(), h.ID, func(s *hub.Hub) error {
		return s.Ban(banned)
	}); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}

	resp := doReq(t, env.app(banned), jsonReq(http.MethodPost, "/hubs/"+h.ID.String()+"/join", ""))
	wantStatus(t, resp, http.StatusForbidden)
	wantErrorCode(t, readBody(t, resp), protocol.CodeBanned)
}

func TestLeaveHub_OwnerRefused(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner := uuid.New()
	h, _ := env.seedHub(t, owner, uuid.Nil)

	resp := doReq(t, env.app(owner), jsonReq(http.MethodPost, "/hubs/"+h.ID.String()+"/leave", ""))
	wantStatus(t, resp, http.StatusForbidden)
	wantErrorCode(t, readBody(t, resp), protocol.CodeMissingHubPermission)
}
