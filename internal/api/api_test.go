package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/gateway"
	"github.com/hubline-chat/hubline-server/internal/hub"
	"github.com/hubline-chat/hubline-server/internal/index"
	"github.com/hubline-chat/hubline-server/internal/message"
	"github.com/hubline-chat/hubline-server/internal/protocol"
	"github.com/hubline-chat/hubline-server/internal/user"
)

var testTimeout = fiber.TestConfig{Timeout: 30 * time.Second}

const testJWTSecret = "0123456789abcdef0123456789abcdef"

// testEnv wires the handlers over real file-backed stores in a temp dir.
type testEnv struct {
	dataDir  string
	hubs     *hub.FSRepository
	users    *user.FSRepository
	messages *message.FSRepository
	indexes  *index.Manager
	registry *gateway.Registry
	router   *gateway.Router

	hubAPI     *HubHandler
	channelAPI *ChannelHandler
	memberAPI  *MemberHandler
	messageAPI *MessageHandler
	authAPI    *AuthHandler
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	dataDir := t.TempDir()

	e := &testEnv{
		dataDir:  dataDir,
		hubs:     hub.NewFSRepository(dataDir, zerolog.Nop()),
		users:    user.NewFSRepository(dataDir, zerolog.Nop()),
		messages: message.NewFSRepository(dataDir, zerolog.Nop()),
		registry: gateway.NewRegistry(),
	}
	e.indexes = index.NewManager(dataDir, 10, e.messages, zerolog.Nop())
	t.Cleanup(func() { _ = e.indexes.Shutdown() })
	e.router = gateway.NewRouter(e.registry, zerolog.Nop())

	e.hubAPI = NewHubHandler(e.hubs, e.users, e.indexes, e.registry, e.router, dataDir, zerolog.Nop())
	e.channelAPI = NewChannelHandler(e.hubs, e.hubAPI, e.indexes, e.registry, e.router, zerolog.Nop())
	e.memberAPI = NewMemberHandler(e.hubs, e.hubAPI, e.router, zerolog.Nop())
	e.messageAPI = NewMessageHandler(e.hubs, e.messages, e.indexes, 50, 50, zerolog.Nop())
	e.authAPI = NewAuthHandler(e.users, testJWTSecret, time.Hour, zerolog.Nop())
	return e
}

// app builds a fiber app with every route mounted behind a stub auth layer
// that authenticates each request as caller.
func (e *testEnv) app(caller uuid.UUID) *fiber.App {
	app := fiber.New()
	app.Use(fakeAuth(caller))

	app.Post("/auth/register", e.authAPI.Register)
	app.Get("/users/me", e.authAPI.Me)

	app.Post("/hubs", e.hubAPI.CreateHub)
	app.Get("/hubs/:hub", e.hubAPI.GetHub)
	app.Patch("/hubs/:hub", e.hubAPI.UpdateHub)
	app.Delete("/hubs/:hub", e.hubAPI.DeleteHub)
	app.Post("/hubs/:hub/join", e.hubAPI.JoinHub)
	app.Post("/hubs/:hub/leave", e.hubAPI.LeaveHub)

	app.Post("/hubs/:hub/channels", e.channelAPI.CreateChannel)
	app.Patch("/hubs/:hub/channels/:channel", e.channelAPI.UpdateChannel)
	app.Delete("/hubs/:hub/channels/:channel", e.channelAPI.DeleteChannel)

	app.Get("/hubs/:hub/channels/:channel/messages", e.messageAPI.History)
	app.Get("/hubs/:hub/channels/:channel/search", e.messageAPI.Search)

	app.Patch("/hubs/:hub/members/:user", e.memberAPI.UpdateMember)
	app.Post("/hubs/:hub/members/:user/kick", e.memberAPI.KickMember)
	app.Post("/hubs/:hub/members/:user/ban", e.memberAPI.BanMember)
	app.Post("/hubs/:hub/members/:user/unban", e.memberAPI.UnbanMember)
	app.Post("/hubs/:hub/members/:user/mute", e.memberAPI.MuteMember)
	app.Post("/hubs/:hub/members/:user/unmute", e.memberAPI.UnmuteMember)
	app.Put("/hubs/:hub/members/:user/permissions/hub", e.memberAPI.SetHubPermission)
	app.Put("/hubs/:hub/members/:user/permissions/channel/:channel", e.memberAPI.SetChannelPermission)

	return app
}

// seedHub persists a hub with one channel, owned by owner, with member
// joined.
func (e *testEnv) seedHub(t *testing.T, owner, member uuid.UUID) (*hub.Hub, *hub.Channel) {
	t.Helper()
	h, err := hub.New("general", owner)
	if err != nil {
		t.Fatalf("hub.New() error = %v", err)
	}
	ch, err := h.NewChannel("chat")
	if err != nil {
		t.Fatalf("NewChannel() error = %v", err)
	}
	if member != uuid.Nil {
		if _, err := h.Join(member); err != nil {
			t.Fatalf("Join() error = %v", err)
		}
	}
	if err := e.hubs.Save(context.Background(), h); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return h, ch
}

func fakeAuth(userID uuid.UUID) fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

// --- response parsing helpers ---

type successEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code              string `json:"code"`
		HubPermission     string `json:"hub_permission"`
		ChannelPermission string `json:"channel_permission"`
	} `json:"error"`
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return b
}

func parseSuccess(t *testing.T, body []byte) successEnvelope {
	t.Helper()
	var env successEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal success response %q: %v", string(body), err)
	}
	return env
}

func parseError(t *testing.T, body []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal error response %q: %v", string(body), err)
	}
	return env
}

func jsonReq(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func doReq(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req, testTimeout)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	return resp
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Errorf("status = %d, want %d", resp.StatusCode, want)
	}
}

// watchHub subscribes a fresh gateway session to the hub so tests can observe
// the events a handler emits.
func (e *testEnv) watchHub(hubID uuid.UUID) *gateway.Session {
	s := gateway.NewSession(uuid.New(), 8)
	e.registry.SubscribeHub(s, hubID)
	return s
}

func drainHubUpdated(t *testing.T, s *gateway.Session) protocol.HubUpdatedData {
	t.Helper()
	select {
	case raw := <-s.Out():
		var frame protocol.EventFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("unmarshal event frame: %v", err)
		}
		if frame.Event != protocol.EventHubUpdated {
			t.Fatalf("event = %q, want %q", frame.Event, protocol.EventHubUpdated)
		}
		var data protocol.HubUpdatedData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			t.Fatalf("unmarshal event payload: %v", err)
		}
		return data
	default:
		t.Fatal("no event queued for the hub subscriber")
		return protocol.HubUpdatedData{}
	}
}

func wantErrorCode(t *testing.T, body []byte, code protocol.ErrorCode) {
	t.Helper()
	env := parseError(t, body)
	if env.Error.Code != string(code) {
		t.Errorf("error code = %q, want %q", env.Error.Code, code)
	}
}
