package api

import (
	"github.com/gofiber/fiber/v3"
)

// Handlers bundles the route handlers for registration.
type Handlers struct {
	Health  *HealthHandler
	Auth    *AuthHandler
	Hub     *HubHandler
	Channel *ChannelHandler
	Member  *MemberHandler
	Message *MessageHandler
	Gateway *GatewayHandler
}

// RegisterRoutes mounts all HTTP routes on the app. Everything under /api/v1
// except registration and the health check requires a Bearer token.
func RegisterRoutes(app *fiber.App, h Handlers, jwtSecret string) {
	app.Get("/health", h.Health.Health)

	v1 := app.Group("/api/v1")
	v1.Post("/auth/register", h.Auth.Register)

	authed := v1.Group("", RequireAuth(jwtSecret))
	authed.Get("/users/me", h.Auth.Me)
	authed.Get("/gateway", h.Gateway.Upgrade)

	hubs := authed.Group("/hubs")
	hubs.Post("", h.Hub.CreateHub)
	hubs.Get("/:hub", h.Hub.GetHub)
	hubs.Patch("/:hub", h.Hub.UpdateHub)
	hubs.Delete("/:hub", h.Hub.DeleteHub)
	hubs.Post("/:hub/join", h.Hub.JoinHub)
	hubs.Post("/:hub/leave", h.Hub.LeaveHub)

	hubs.Post("/:hub/channels", h.Channel.CreateChannel)
	hubs.Patch("/:hub/channels/:channel", h.Channel.UpdateChannel)
	hubs.Delete("/:hub/channels/:channel", h.Channel.DeleteChannel)

	hubs.Get("/:hub/channels/:channel/messages", h.Message.History)
	hubs.Get("/:hub/channels/:channel/search", h.Message.Search)

	hubs.Patch("/:hub/members/:user", h.Member.UpdateMember)
	hubs.Post("/:hub/members/:user/kick", h.Member.KickMember)
	hubs.Post("/:hub/members/:user/ban", h.Member.BanMember)
	hubs.Post("/:hub/members/:user/unban", h.Member.UnbanMember)
	hubs.Post("/:hub/members/:user/mute", h.Member.MuteMember)
	hubs.Post("/:hub/members/:user/unmute", h.Member.UnmuteMember)
	hubs.Put("/:hub/members/:user/permissions/hub", h.Member.SetHubPermission)
	hubs.Put("/:hub/members/:user/permissions/channel/:channel", h.Member.SetChannelPermission)
}
