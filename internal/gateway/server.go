package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/config"
)

// ErrMaxConnections is returned when the gateway is at its connection limit.
var ErrMaxConnections = errors.New("gateway connection limit reached")

// Server accepts WebSocket connections, tracks identified clients, and tears
// their registry edges down on disconnect.
type Server struct {
	cfg      *config.Config
	handler  *Handler
	registry *Registry

	mu      sync.RWMutex
	clients map[*Client]bool

	log zerolog.Logger
}

// NewServer creates the gateway connection server.
func NewServer(cfg *config.Config, handler *Handler, registry *Registry, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		handler:  handler,
		registry: registry,
		clients:  make(map[*Client]bool),
		log:      logger.With().Str("component", "gateway").Logger(),
	}
}

// ServeWebSocket runs the read pump for an upgraded connection. It blocks
// until the connection drops, matching the contract of the fiber websocket
// handler.
func (g *Server) ServeWebSocket(conn *websocket.Conn) {
	client := newClient(g, conn, g.log)
	client.readPump()
}

// register binds an identified client's session. Fails when the connection
// limit is reached.
func (g *Server) register(client *Client, session *Session) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.clients) >= g.cfg.GatewayMaxConnections {
		return ErrMaxConnections
	}
	g.clients[client] = true
	g.log.Debug().
		Stringer("user_id", session.UserID()).
		Int("total", len(g.clients)).
		Msg("Client registered")
	return nil
}

// unregister removes a client and atomically clears every subscription its
// session held.
func (g *Server) unregister(client *Client) {
	g.mu.Lock()
	_, ok := g.clients[client]
	delete(g.clients, client)
	g.mu.Unlock()
	if !ok {
		return
	}

	if s := client.sessionRef(); s != nil {
		g.registry.Disconnect(s)
		s.Close()
		g.log.Debug().Stringer("session_id", s.ID()).Msg("Client unregistered")
	}
}

// ClientCount returns the number of identified clients.
func (g *Server) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Shutdown closes every connection with a Going Away status and clears the
// registry.
func (g *Server) Shutdown() {
	g.mu.Lock()
	clients := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.clients = make(map[*Client]bool)
	g.mu.Unlock()

	for _, c := range clients {
		if s := c.sessionRef(); s != nil {
			g.registry.Disconnect(s)
			s.Close()
		}
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait),
		)
		_ = c.conn.Close()
	}
	g.log.Info().Msg("Gateway shut down")
}
