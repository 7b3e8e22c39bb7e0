package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/auth"
	"github.com/hubline-chat/hubline-server/internal/protocol"
)

const (
	// maxInboundBytes is the maximum size of a single inbound frame: the
	// message content limit plus headroom for the JSON envelope.
	maxInboundBytes = 8192

	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// commandTimeout bounds the storage and index work of one command.
	commandTimeout = 10 * time.Second
)

// WebSocket close codes sent when a connection is rejected.
const (
	closeAuthFailed     = 4001
	closeDecodeError    = 4002
	closeRateLimited    = 4008
	closeMaxConnections = 4009
)

// Client is one WebSocket connection. It runs a read pump that decodes and
// executes command frames, and, once identified, a write pump that drains the
// session sink.
type Client struct {
	server *Server
	conn   *websocket.Conn
	log    zerolog.Logger

	// Set once by the identify command. Guarded by mu: the identify-timeout
	// callback reads it from the timer goroutine.
	mu      sync.Mutex
	session *Session

	// Rate limiting state, only touched from the read pump.
	eventCount  int
	windowStart time.Time
}

func (c *Client) sessionRef() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func newClient(server *Server, conn *websocket.Conn, logger zerolog.Logger) *Client {
	return &Client{
		server: server,
		conn:   conn,
		log:    logger,
	}
}

// readPump reads command frames until the connection drops. It owns the
// connection teardown.
func (c *Client) readPump() {
	defer func() {
		c.server.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundBytes)

	// Close connections that never identify.
	identifyTimer := time.AfterFunc(c.server.cfg.GatewayIdentifyTimeout, func() {
		if c.sessionRef() == nil {
			c.log.Debug().Msg("Client did not identify in time")
			c.closeWithCode(closeAuthFailed, "identify timeout")
		}
	})
	defer identifyTimer.Stop()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		if c.rateLimited() {
			c.closeWithCode(closeRateLimited, "rate limit exceeded")
			return
		}

		var frame protocol.CommandFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.closeWithCode(closeDecodeError, "invalid JSON")
			return
		}

		session := c.sessionRef()

		if frame.Command == protocol.CommandIdentify {
			// Stop returning false with no session means the timeout callback
			// already fired and is tearing the connection down.
			if !identifyTimer.Stop() && session == nil {
				return
			}
			c.handleIdentify(&frame)
			continue
		}

		if session == nil {
			c.respondDirect(c.errorAck(&frame, protocol.NewError(protocol.CodeNotAuthenticated)))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		ack := c.server.handler.HandleCommand(ctx, session, &frame)
		cancel()
		if ack != nil && !session.TrySend(ack) {
			c.log.Warn().Msg("Client send buffer full, closing connection")
			return
		}
	}
}

// writePump drains the session sink onto the wire. It starts after identify
// and exits when the sink closes.
func (c *Client) writePump(session *Session) {
	defer func() { _ = c.conn.Close() }()

	for frame := range session.Out() {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}
}

// handleIdentify validates the token, binds a session, and registers the
// client for dispatch.
func (c *Client) handleIdentify(frame *protocol.CommandFrame) {
	if session := c.sessionRef(); session != nil {
		// The write pump owns the connection once a session exists; the ack
		// must go through the sink like every other frame.
		if ack := c.errorAck(frame, protocol.NewError(protocol.CodeNotAuthenticated)); ack != nil {
			session.TrySend(ack)
		}
		return
	}

	userID, err := auth.ValidateAccessToken(frame.Token, c.server.cfg.JWTSecret)
	if err != nil {
		c.log.Debug().Err(err).Msg("Identify token validation failed")
		c.closeWithCode(closeAuthFailed, "invalid token")
		return
	}

	session := NewSession(userID, c.server.cfg.GatewaySendBuffer)
	if err := c.server.register(c, session); err != nil {
		c.log.Warn().Err(err).Msg("Failed to register client")
		c.closeWithCode(closeMaxConnections, "connection limit reached")
		return
	}
	c.setSession(session)

	go c.writePump(session)

	if ack, aErr := protocol.NewSuccessFrame(frame.MessageID); aErr == nil {
		session.TrySend(ack)
	}

	c.log.Info().Stringer("user_id", userID).Stringer("session_id", session.ID()).Msg("Client identified")
}

// errorAck builds an error acknowledgement frame.
func (c *Client) errorAck(frame *protocol.CommandFrame, wireErr *protocol.Error) []byte {
	out, err := protocol.NewErrorFrame(frame.MessageID, wireErr)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to build error acknowledgement")
		return nil
	}
	return out
}

// respondDirect writes a frame on the connection outside the session sink.
// Only valid before a session exists: once the write pump is running it is
// the connection's sole writer.
func (c *Client) respondDirect(frame []byte) {
	if frame == nil {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.log.Debug().Err(err).Msg("WebSocket write error")
	}
}

// closeWithCode sends a close frame with the given code and reason, then
// closes the underlying connection.
func (c *Client) closeWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// rateLimited returns true if the client has exceeded the configured frame
// rate limit.
func (c *Client) rateLimited() bool {
	now := time.Now()
	window := time.Duration(c.server.cfg.RateLimitWSWindowSeconds) * time.Second
	if now.Sub(c.windowStart) > window {
		c.eventCount = 0
		c.windowStart = now
	}
	c.eventCount++
	return c.eventCount > c.server.cfg.RateLimitWSCount
}
