package api

import (
	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"

	"github.com/hubline-chat/hubline-server/internal/gateway"
)

// GatewayHandler serves the WebSocket upgrade endpoint for the real-time
// gateway.
type GatewayHandler struct {
	server *gateway.Server
}

// NewGatewayHandler creates a gateway handler.
func NewGatewayHandler(server *gateway.Server) *GatewayHandler {
	return &GatewayHandler{server: server}
}

// Upgrade handles GET /api/v1/gateway. It upgrades the HTTP connection to a
// WebSocket and hands it to the gateway server.
func (h *GatewayHandler) Upgrade(c fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.server.ServeWebSocket(conn.Conn)
	})(c)
}
